// Package receiver implements eventrpc.EventServiceServer, the gRPC endpoint
// that accepts status events from iotcloud-agent instances and devices that
// speak gRPC.
//
// Receiver.SendEvent normalizes and records the event through the store and
// returns an Ack echoing the accepted device id and status. It has no
// failure path of its own; transport errors are handled by grpc-go.
//
// New(st, reg) wires the receiver to the given device store and metrics registry.
package receiver
