// Package model provides the domain types shared by every cloister package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Actor, chat and message identifiers are distinct named types
//   - Access codes are exactly four ASCII digits
//   - Free-text fields are NFC normalized before they are staged or stored
package model
