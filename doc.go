// Package goboreal is a client driver core for the Boreal cloud data
// warehouse. It submits SQL statements over HTTPS and streams back result
// sets that may span many remotely hosted chunks, downloading, decompressing
// and decoding them in the background while the caller consumes rows.
//
// The externally visible surface is the Cursor: Execute, ExecuteMany,
// FetchOne, FetchMany, FetchAll and the iteration protocol, backed by a
// ResultSet that concatenates ResultBatches in server order with a bounded
// prefetch look-ahead. Session establishment, authentication and transport
// retry policy live behind the SessionTransport and BlobFetcher interfaces
// and are not part of this package's core.
package goboreal
