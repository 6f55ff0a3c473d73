// Package replication holds the generated Packet Schema types used by
// the reference server and client binaries: a WorldSnapshot/WorldDelta
// pair covering the demo component set (Position, Color).
package replication

//go:generate go run ../../cmd/packetgen -out packet_gen.go
