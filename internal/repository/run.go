// Package repository provides run storage backed by memory with an optional
// PostgreSQL mirror.
package repository

import (
	"errors"

	"github.com/soochol/minizaps/internal/zaps/ports"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

var (
	_ ports.RunStore = (*MemoryRunRepository)(nil)
	_ ports.RunStore = (*PersistentRunRepository)(nil)
)
