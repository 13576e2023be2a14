//go:build !pgbridge_release

package mem

const debugBuild = true
