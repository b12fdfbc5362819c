// Package simpleimageset manages ordered media collections ("imagesets")
// attached to an owning entity, together with the asynchronous pipeline that
// uploads a file, validates it, stores it in a bucket and links it into the
// collection while reporting progress through pollable tokens.
//
// The package is organized as a library-first core: interfaces for the
// repository, bucket store, authorizer and media prober are defined here, with
// implementations provided by subpackages (repo/memory, repo/postgres,
// storage/memory, storage/fs, storage/s3, token, token/redis).
package simpleimageset
