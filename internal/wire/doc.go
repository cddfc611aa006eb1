// Package wire defines the JSON envelopes exchanged between a console
// channel and the terminal server.
//
// Every operation (write, read, setSize) posts the same Request shape:
//
//	{"session_id": "...", "extra": {...}, "data": "...", "columns": 80, "rows": 24}
//
// Unused fields are omitted; extra is always sent, as {} when empty.
// Acknowledgement-only operations answer "{}"; read answers {"data": "..."}.
package wire
