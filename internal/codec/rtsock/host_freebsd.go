package rtsock

// Host is the layout of the running kernel.
var Host = FreeBSD
