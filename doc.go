// Package sealpost sends and receives end-to-end encrypted messages whose
// commitments are recorded on an append-only ledger.
//
// Message bodies never touch the ledger. The sender encrypts the plaintext
// under a fresh AES-256-GCM key, wraps that key to the recipient's
// published public key, and stores both envelopes in a content store. The
// ledger records only the ciphertext digest, the IV and commitments to the
// two locators. Locators travel out of band, through a correlation store.
//
// Basic usage:
//
//	keys, err := sealpost.GenerateKeys(sealpost.SchemeMLKEM768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := sealpost.New(ledgerClient, blobs, keys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.PublishKey(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := client.Send(ctx, recipient, []byte("hello"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msgs, err := client.Receive(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, m := range msgs {
//	    if m.Err != nil {
//	        continue
//	    }
//	    fmt.Printf("%d from %s: %s\n", m.ID, m.Sender, m.Plaintext)
//	}
package sealpost
