// Package kernels provides the built-in dspgraph audio kernels.
//
// Every kernel is registered by name in a Registry so that patch files and
// the command line tool can create nodes without importing the concrete
// types. A Factory turns a Config into a Spec: the kernel instance plus the
// parameters, provider slots and port counts its node needs.
//
// Parameter indices are exported as constants next to each kernel, e.g.
// GainLevel or OscillatorFrequency, for use with CommandBlock.SetFloat.
package kernels
