// Package appcache implements an offline application-shell cache.
//
// A Worker owns one versioned cache, named after its Manifest version. The
// lifecycle mirrors a browser service worker:
//
//   - Install fetches every manifest asset and stores all of them, or none
//     if any fetch fails.
//   - Activate deletes every cache whose name differs from the current
//     version. Bumping the version is the only invalidation mechanism.
//   - Fetch answers from the cache first and falls back to the network.
//     Responses fetched at runtime are never written to the cache.
//
// Entries are persisted through a Storage backend: FSStorage keeps them as
// files on an afero filesystem, SQLStorage in a SQLite database.
package appcache
