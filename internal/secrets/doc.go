// Package secrets provides field-level AES-256-GCM encryption for
// DeploymentJob env vars marked secret=true, plus a redaction filter applied
// to every string field before it is written to the Audit Store or emitted
// on the Event Bus (§4.3, §8 invariant 8).
//
// Encrypted values are stored with a "$dep_enc$" prefix followed by a version
// tag and base64-encoded nonce + ciphertext + GCM tag. The prefix allows
// graceful migration — plaintext values pass through the decrypt path
// unchanged.
//
// # Initialization
//
// Call Init() at startup with a base64-encoded 32-byte AES key:
//
//	secrets.Init(keyBase64)
//
// If no key is provided, encryption is disabled and all operations are
// no-ops, which lets a deployment run without the key wired yet.
package secrets
