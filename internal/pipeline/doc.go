// Package pipeline is the host side of the recorder: it renders a source
// through a chain of in-line processors, such as the capture tap, into an
// output.
package pipeline
