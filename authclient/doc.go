// Package authclient is the Go client for the Nexus Core credential
// lifecycle. It keeps a credential pair fresh in the background,
// renewing ahead of expiry, and provides an http.RoundTripper that
// attaches the access credential to outgoing requests, adopts rotated
// credentials from response headers, and retries once after a 401.
//
// Typical use:
//
//	client, err := authclient.New("https://nexus.example.com", authclient.Options{
//		Store:    authclient.NewFileStore("/var/lib/app/credentials.json"),
//		OnLogout: func(err error) { promptForLogin() },
//	})
//	if err != nil { ... }
//	defer client.Close()
//
//	if err := client.Login(ctx, "user@example.com", password); err != nil { ... }
//
//	httpc := &http.Client{Transport: client.Transport(nil)}
package authclient
