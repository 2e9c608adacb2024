// Package output drives a dspgraph.Graph from the consumer side.
//
// A Renderer repeatedly begins and reads mixes and presents the result as a
// continuous interleaved stream. On top of it the package offers a
// beep.Streamer adapter, WAV rendering and realtime playback through oto.
// Builds with the headless tag leave out the oto backend.
package output
