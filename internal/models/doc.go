// Package models defines the domain types shared by the sync engine, the Spotify client, and the history store.
//
// The package contains two categories of types:
//
// 1. Value types describing remote data
//   - [Track] : a song with the metadata identity used for reconciliation (see [Track.Key])
//   - [Artist] : artist reference carried by a track
//   - [Playlist] : playlist metadata from the user's library
//
// 2. Persistent entities
//   - [SyncRun] : audit record of one sync invocation
//
// Persistent entities implement [Model] and are stored through a [Repository].
package models
