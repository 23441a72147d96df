// Package ws streams supervisor notifications to WebSocket clients.
//
// A client connects to /stream, optionally narrowing what it receives with
// ?kinds=data,exit. Every notification becomes one JSON text frame; frames
// sent by the client carry terminal input and resizes back:
//
//	{"type":"write","session_id":"t1","data":"ls\r"}
//	{"type":"resize","session_id":"t1","cols":120,"rows":40}
//	{"type":"ping"}
//
// Each connection has a single writer goroutine; the handler goroutine only
// reads.
package ws
