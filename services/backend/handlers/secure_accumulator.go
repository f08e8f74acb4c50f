// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides HTTP request handlers for the backend service.
//
// This file implements secure answer accumulation for the streaming search
// pipeline. Relayed answer chunks are stored in mlocked memory to prevent
// swapping to disk and are incrementally hashed for integrity verification.
// The finalized text feeds citation extraction and the fact-check pass.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// AnswerBufferSize is the size of the mlocked buffer for answer accumulation.
	// 512 KB provides ample room for long grounded answers with citation markers.
	AnswerBufferSize = 512 * 1024

	// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
	MinMlockLimitKB = 512

	// InsecureMemoryEnv acknowledges running without mlocked memory.
	InsecureMemoryEnv = "MIRAS_INSECURE_MEMORY"
)

// =============================================================================
// Package Variables
// =============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate if secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// Interfaces
// =============================================================================

// AnswerAccumulator defines the contract for accumulating relayed answer chunks.
//
// # Description
//
// AnswerAccumulator abstracts answer storage during the streaming search
// pipeline, allowing secure (mlocked) or insecure (process memory)
// implementations based on system capabilities. Chunks are hashed
// incrementally as they arrive.
//
// The finalized answer is load-bearing for the protocol: citation markers
// are extracted from it and the fact-check pass runs over it. An
// accumulator is therefore always available; systems without sufficient
// mlock fall back to process memory with a security warning rather than
// failing the request.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Examples
//
//	acc := NewAnswerAccumulator()
//	defer acc.Destroy()
//
//	acc.Write("Hello ")
//	acc.Write("world.[1]()")
//	answer, hash, _ := acc.Finalize()
//
// # Limitations
//
//   - Buffer size is fixed (cannot grow dynamically)
//   - Accumulator cannot be reused after Finalize() or Destroy()
type AnswerAccumulator interface {
	// Write appends an answer chunk to the accumulator.
	//
	// # Inputs
	//
	//   - chunk: Answer text to append (must be valid UTF-8)
	//
	// # Outputs
	//
	//   - error: Non-nil if accumulation failed (e.g., buffer overflow)
	Write(chunk string) error

	// Finalize returns the accumulated answer and its hash, then wipes memory.
	//
	// # Outputs
	//
	//   - answer: Complete accumulated answer string
	//   - hash: SHA-256 hash of the answer (hex encoded, 64 characters)
	//   - error: Non-nil if finalization failed
	//
	// # Limitations
	//
	//   - Can only be called once; accumulator is unusable afterwards
	Finalize() (answer string, hash string, err error)

	// Destroy wipes memory without returning data.
	//
	// Use this on error paths where the accumulated answer is not needed.
	// Safe to call multiple times (idempotent).
	Destroy()

	// ID returns a unique identifier for this accumulator instance,
	// used for logging correlation.
	ID() string
}

// =============================================================================
// Structs: Secure Implementation
// =============================================================================

// secureAnswerAccumulator stores answer chunks in mlocked memory.
//
// # Description
//
// Uses a memguard LockedBuffer for in-memory storage of the streamed answer.
// Memory protections include:
//   - Locked (mlock) to prevent swapping to disk
//   - Guard pages to detect buffer overflows
//   - Canary values to detect buffer underflows
//   - Explicit zeroing on Destroy() to prevent memory forensics
//   - Incremental SHA-256 hashing as chunks arrive
//
// # Thread Safety
//
// Safe for concurrent use. Uses mutex to protect internal state.
//
// # System Requirements
//
// Requires mlock limit >= AnswerBufferSize (512 KB).
type secureAnswerAccumulator struct {
	id        string
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// =============================================================================
// Structs: Insecure Fallback Implementation
// =============================================================================

// insecureAnswerAccumulator is a fallback for systems without sufficient mlock.
//
// # Description
//
// Provides the same interface as secureAnswerAccumulator but uses standard
// Go memory ([]byte). This is used when mlock limits are insufficient or
// memguard allocation fails.
//
// # Security Warning
//
// This implementation does NOT provide the guarantees of the secure version.
// Data may be swapped to disk and is not protected by guard pages. Memory
// wiping is best-effort only; the garbage collector may retain copies.
//
// # Thread Safety
//
// Safe for concurrent use.
type insecureAnswerAccumulator struct {
	id        string
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// =============================================================================
// Constructor Functions
// =============================================================================

// NewAnswerAccumulator creates an accumulator for one streaming turn.
//
// # Description
//
// Allocates a mlocked buffer of AnswerBufferSize bytes when the system
// permits it. If the mlock limit is insufficient or allocation fails, falls
// back to an insecure accumulator so the request can still complete; the
// fallback is logged loudly unless MIRAS_INSECURE_MEMORY=true acknowledges
// it.
//
// # Outputs
//
//   - AnswerAccumulator: Ready for use (secure or insecure based on system)
//
// # Examples
//
//	acc := NewAnswerAccumulator()
//	defer acc.Destroy()
func NewAnswerAccumulator() AnswerAccumulator {
	initMemguard()

	if !mlockSufficient {
		return newInsecureAnswerAccumulator()
	}

	buf := memguard.NewBuffer(AnswerBufferSize)
	if buf == nil {
		slog.Error("Secure buffer allocation failed, falling back to process memory",
			"buffer_size", AnswerBufferSize,
		)
		return newInsecureAnswerAccumulator()
	}
	buf.Melt()

	accID := uuid.New().String()

	slog.Debug("Created secure answer accumulator",
		"accumulator_id", accID,
		"buffer_size", AnswerBufferSize,
	)

	return &secureAnswerAccumulator{
		id:     accID,
		buffer: buf,
		hasher: sha256.New(),
	}
}

// newInsecureAnswerAccumulator creates the fallback accumulator in
// standard Go memory.
func newInsecureAnswerAccumulator() AnswerAccumulator {
	accID := uuid.New().String()

	slog.Warn("Created INSECURE answer accumulator - data may be swapped to disk",
		"accumulator_id", accID,
	)

	return &insecureAnswerAccumulator{
		id:     accID,
		data:   make([]byte, 0, AnswerBufferSize),
		hasher: sha256.New(),
	}
}

// =============================================================================
// secureAnswerAccumulator Methods
// =============================================================================

// Write appends an answer chunk to the secure buffer.
//
// Copies chunk bytes into the mlocked buffer and updates the incremental
// hash. If the buffer would overflow, sets the overflow flag and returns an
// error; the accumulator cannot recover from overflow.
func (a *secureAnswerAccumulator) Write(chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.validateWriteState(); err != nil {
		return err
	}

	chunkBytes := []byte(chunk)

	if a.offset+len(chunkBytes) > AnswerBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(chunkBytes), AnswerBufferSize-a.offset)
	}

	copy(a.buffer.Bytes()[a.offset:], chunkBytes)
	a.offset += len(chunkBytes)
	a.hasher.Write(chunkBytes)

	return nil
}

// Finalize returns the accumulated answer and its hash, then wipes the buffer.
func (a *secureAnswerAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipeBuffer()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipeBuffer()

	slog.Debug("Finalized secure answer accumulator",
		"accumulator_id", a.id,
		"answer_length", len(answer),
		"hash", hashStr[:16]+"...",
	)

	return answer, hashStr, nil
}

// Destroy wipes the buffer without returning data.
func (a *secureAnswerAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}

	a.wipeBuffer()
	slog.Debug("Destroyed secure answer accumulator", "accumulator_id", a.id)
}

// ID returns the unique identifier for this accumulator instance.
func (a *secureAnswerAccumulator) ID() string {
	return a.id
}

// validateWriteState checks if the accumulator is in a valid state for writing.
func (a *secureAnswerAccumulator) validateWriteState() error {
	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow - answer too large")
	}
	return nil
}

// wipeBuffer destroys the secure buffer and marks as destroyed.
func (a *secureAnswerAccumulator) wipeBuffer() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

// =============================================================================
// insecureAnswerAccumulator Methods
// =============================================================================

// Write appends an answer chunk to the insecure buffer.
func (a *insecureAnswerAccumulator) Write(chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow - answer too large")
	}

	chunkBytes := []byte(chunk)

	if len(a.data)+len(chunkBytes) > AnswerBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(chunkBytes), AnswerBufferSize-len(a.data))
	}

	a.data = append(a.data, chunkBytes...)
	a.hasher.Write(chunkBytes)

	return nil
}

// Finalize returns the accumulated answer and hash, attempting to zero memory.
//
// Due to Go's garbage collector, copies of the data may remain in memory.
func (a *insecureAnswerAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipeData()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipeData()

	slog.Debug("Finalized insecure answer accumulator",
		"accumulator_id", a.id,
		"answer_length", len(answer),
	)

	return answer, hashStr, nil
}

// Destroy attempts to wipe memory (best effort).
func (a *insecureAnswerAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}

	a.wipeData()
	slog.Debug("Destroyed insecure answer accumulator", "accumulator_id", a.id)
}

// ID returns the unique identifier for this accumulator instance.
func (a *insecureAnswerAccumulator) ID() string {
	return a.id
}

// wipeData zeros the data slice (best effort).
func (a *insecureAnswerAccumulator) wipeData() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

// =============================================================================
// Package Initialization Functions
// =============================================================================

// initMemguard initializes the memguard library and checks mlock limits.
//
// Performs one-time initialization of memguard and validates that the system
// has sufficient mlock limits for secure memory operations. Called
// automatically when creating the first accumulator.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		logMlockStatus()
	})
}

// checkMlockLimit queries the kernel for the current mlock resource limit
// and compares it against the minimum required for answer accumulation.
//
// # Outputs
//
//   - bool: True if limit is sufficient (>= MinMlockLimitKB)
//   - int64: Current limit in kilobytes (-1 if unlimited)
//
// # Limitations
//
//   - Only works on Unix-like systems (Linux, macOS, BSD)
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// logMlockStatus logs the current mlock status.
func logMlockStatus() {
	if mlockSufficient {
		slog.Info("Secure memory initialized",
			"mlock_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
			"status", "sufficient",
		)
		return
	}

	if os.Getenv(InsecureMemoryEnv) == "true" {
		slog.Warn("SECURITY: Running with insecure memory - mlock limit insufficient",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
			"env_override", InsecureMemoryEnv+"=true",
		)
	} else {
		slog.Error("mlock limit insufficient for secure memory, answers will use process memory",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
			"help", "Raise RLIMIT_MEMLOCK or set "+InsecureMemoryEnv+"=true to acknowledge",
		)
	}
}

// =============================================================================
// Utility Functions
// =============================================================================

// IsMlockAvailable returns whether secure memory is available on this system.
//
// # Outputs
//
//   - bool: True if secure memory is available
//   - int64: Current mlock limit in KB (-1 if unlimited)
func IsMlockAvailable() (bool, int64) {
	initMemguard()
	return mlockSufficient, currentMlockLimitKB
}

// PurgeAllSecureMemory wipes all memguard-allocated memory.
//
// Should be called during graceful shutdown to ensure all sensitive data is
// wiped. This also runs automatically on SIGINT/SIGTERM once
// memguard.CatchInterrupt() has been armed.
func PurgeAllSecureMemory() {
	memguard.Purge()
	slog.Info("Purged all secure memory")
}
