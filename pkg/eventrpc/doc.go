// Package eventrpc defines the iotcloud.v1.EventService gRPC service without
// generated protobuf code. Messages are the plain structs from package types,
// carried by a JSON codec registered under the "json" content-subtype.
//
// Server side: RegisterEventServiceServer(s, impl).
// Client side: NewEventServiceClient(conn).SendEvent(ctx, ev); the client
// forces the JSON codec on every call.
package eventrpc
