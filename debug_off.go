//go:build !systemsdebug

package systems

// debugChecks enables element type validation on references and container
// slots. Build with -tags systemsdebug to turn it on.
const debugChecks = false
