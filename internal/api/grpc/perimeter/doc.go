// Package perimeter implements the gRPC control API of the controller.
//
// The service is declared by hand on top of protobuf well-known types:
// requests are google.protobuf.Empty or StringValue, replies are a Struct
// carrying the controller status. The caller's identity travels in metadata.
package perimeter
