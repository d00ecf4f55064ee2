// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("📴 go-kinsync - Offline-First Write Synchronization")
	fmt.Println("===================================================")
	fmt.Println()
	fmt.Println("go-kinsync records local mutations in a durable sync journal, coalesces")
	fmt.Println("redundant operations, and pushes them to a remote HTTP backend in bounded")
	fmt.Println("batches with per-entity retry and repair semantics.")
	fmt.Println()

	fmt.Println("📚 Packages:")
	fmt.Println()
	fmt.Println("1. 🗄️  kinstore - Pluggable local storage")
	fmt.Println("   Key/value adapters (indexed in-memory, sqlite, string dictionary)")
	fmt.Println("   selected by capability probe, plus a typed collection store with")
	fmt.Println("   client-side query evaluation")
	fmt.Println()

	fmt.Println("2. 🔄 kinsync - Sync journal and push engine")
	fmt.Println("   Monotonic mutation journal, last-write-wins coalescing, batched")
	fmt.Println("   push with failure classification and local-store repair")
	fmt.Println()
}
