package orchestrator

// SnapshotEventBuffer is how many unread snapshots the event channel holds before dropping.
const SnapshotEventBuffer = 100
