// Package nanorelay provides a Go client for NanoRelay, an end-to-end
// encrypted messenger built around unlinkable relay mailboxes.
//
// Messages travel as sealed envelopes through derived inbox addresses:
// the first message to a peer uses an address computed from their
// public key alone, and every later message in the conversation uses a
// fresh address derived from the shared secret and a counter, so the
// relay never learns which mailboxes belong to the same exchange.
// Three crypto modes are supported: classical (X25519/Ed25519),
// post-quantum (ML-KEM-768/ML-DSA-65) and a hybrid of both. An
// optional adaptive advisor picks between them from live network and
// device conditions.
//
// Basic usage:
//
//	identity, err := nanorelay.NewIdentity(nanorelay.ModeHybrid)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := nanorelay.New(identity,
//	    nanorelay.WithRelayAddress("relay.example.com:7733"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Send to a peer's public key string.
//	_, err = client.Send(ctx, peerKey, "hello")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Poll for new messages.
//	msgs, err := client.Fetch(ctx)
//	for _, msg := range msgs {
//	    fmt.Println(msg.FromPubKey, msg.Content)
//	}
package nanorelay
