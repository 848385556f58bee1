// Package edge is the caching interceptor that sits between the NutriTrack
// web app and its origin. Every request the page makes passes through a
// Controller, which picks a caching strategy for it:
//
//   - navigations use the app shell: network first, then the cached "/"
//     page, then a synthetic "503 Offline";
//   - scripts, styles and workers are stale-while-revalidate;
//   - images are cache-first;
//   - everything else is network-first with a cached fallback.
//
// API traffic and non-GET requests always go straight to the origin.
//
// Cached responses live in named generations ("nutritrack-assets-v2").
// A Controller owns the four generations of one cache version; Install
// pre-caches the app shell and Activate deletes every other generation.
// The Registry swaps controllers so that a failed install of a new version
// leaves the old one serving.
package edge
