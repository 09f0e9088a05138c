// Package contentstore stores opaque blobs under content-derived locators.
//
// Locators are CIDv0-style strings: base58 of a sha2-256 multihash over the
// blob. Every Get re-hashes the returned bytes, so a store cannot substitute
// content without being detected.
//
// A store may be eventually consistent; [Retrying] wraps any [Store] with a
// bounded retry on Get.
package contentstore
