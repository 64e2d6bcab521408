// Package dtx implements the client side of the DTX ("Distributed
// Transaction / DeveloperTools Exchange") binary RPC protocol used to drive
// the on-device Instruments / developer server of a mobile platform.
//
// A Session owns a single framed transport, performs a capability
// handshake, and multiplexes independent logical channels over that one
// transport. Selector invocations and their return values are carried as
// typed, versioned object graphs encoded with the keyed-archive codec in
// the archive sub-package; positional arguments are carried with the
// tagged auxiliary codec in aux.go.
//
// This package is the protocol engine only: it consumes an
// already-authenticated byte stream (see the Transport interface), does
// the DTX framing itself, and knows nothing about device pairing or TLS bring-up.
// Domain-specific facades (process listing, app listing, launch/kill,
// system info, monitoring streams) live in the sibling packages
// deviceinfo, applist, processcontrol, networking and sysmontap.
package dtx
