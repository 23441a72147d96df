// Package pty is the OS process layer: it starts shells attached to
// pseudo-terminals and keeps a small pool of pre-started default shells.
//
// Features:
//   - PTY-backed processes via github.com/creack/pty
//   - Each process leads its own session and process group, so pause,
//     resume and kill reach every descendant
//   - Warm pool of default shells handed out without a spawn delay
//
// Architecture:
//   - Spawner builds the command (shell, directory, environment) and starts it
//   - Handle owns the command and the pty master until the process is reaped
//   - Pool refills itself in the background after every Acquire
//
// Only Unix-like systems are supported; on Windows Spawn always fails.
package pty
