/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission provides a bounded executor that decides synchronously whether a task is admitted:
// a fixed pool of workers pulls tasks from a queue of fixed capacity,
// and a task is rejected immediately when all workers are busy and the queue is full.
package admission
