/*
Package websock streams packet capture data to a websocket service, handling
graceful closing on both sides using polite close control messages. This is as
opposed to simply tearing down the transport (TLS) connection, which would
leave the receiving side wondering whether it got the complete capture.
*/
package websock
