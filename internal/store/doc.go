// Package store materializes fetched package source trees on disk under
// a content-addressed layout and extracts registry tarballs safely.
//
// Store is a distinct concern from internal/cache: store addresses
// *source* trees by the BLAKE3 digest of their contents (so two
// resolutions that land on the same package@version share one copy on
// disk even if fetched through different paths), while cache addresses
// *build outputs* by SHA-256 over a step's declared inputs.
package store
