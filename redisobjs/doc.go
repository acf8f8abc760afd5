package redisobjs

// Package redisobjs stores Go values in redis using the store's own types.
//
// The shape of a value picks the redis type of its key:
//
//	string, []byte and scalars    string (scalars JSON encoded)
//	slices and arrays             list, or zset with ForceUnique
//	maps with string keys         hash
//	Set                           set
//
// Every element, field value and member is JSON encoded, so lists, hashes
// and sets may hold mixed values. A Set may not appear inside any other
// value.
//
// An Object is a typed view of one key. Reads and writes are queued on a
// Pipeline, which may be shared by several Objects so that their commands
// go in one round trip. A Stream moves large values through an Object in
// chunks.
