// Package channel adapts an interactive terminal onto a stateless
// request/response transport.
//
// A Channel owns one session identifier and multiplexes three operations over
// its Transport:
//   - write: keystrokes and pasted data. At most one write is in flight; data
//     submitted meanwhile is coalesced into a single follow-up write, in order.
//   - setSize: fire-and-forget resize notifications.
//   - read: a strictly sequential long-poll loop that pushes remote output to
//     a sink.
//
// Example Usage:
//
//	ch, err := channel.New(httpTransport, "http://localhost:8080/", map[string]string{"command": "ls"})
//	if err != nil {
//		return err
//	}
//	ch.StartRead(ctx, os.Stdout)
//	ch.SetSize(80, 24)
//	ch.Write("ls -la\n")
package channel
