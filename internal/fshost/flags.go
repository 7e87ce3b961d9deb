package fshost

// OpenFlags mirrors the preview-2 open-flags bitset named but not
// enumerated in spec §4.E, numbered after POSIX O_* the way
// internal/sysfs (grafana-k6 vendor copy) mirrors os.O_CREATE and
// friends.
type OpenFlags uint32

const (
	OpenCreate OpenFlags = 1 << iota
	OpenDirectory
	OpenExclusive
	OpenTruncate
	// OpenAppend is O_APPEND: every write (ordinary or explicit-offset)
	// lands at end-of-file regardless of the descriptor's seek position,
	// per spec §3 Descriptor "append: bool" and scenario §8.2.
	OpenAppend
)

func (f OpenFlags) has(bit OpenFlags) bool { return f&bit != 0 }

// DescriptorFlags mirrors the preview-2 descriptor-flags bitset: the
// access mode and behavioral flags attached to an open descriptor rather
// than to the open call itself.
type DescriptorFlags uint32

const (
	DescriptorRead DescriptorFlags = 1 << iota
	DescriptorWrite
	DescriptorFileIntegritySync
	DescriptorDataIntegritySync
	DescriptorRequestedWriteSync
	DescriptorMutateDirectory
	DescriptorNoFollow
)

func (f DescriptorFlags) has(bit DescriptorFlags) bool { return f&bit != 0 }

// PathFlags controls final-component symlink resolution for the *-at
// family of operations (open-at, stat-at, etc.).
type PathFlags uint32

const (
	PathSymlinkFollow PathFlags = 1 << iota
)

func (f PathFlags) has(bit PathFlags) bool { return f&bit != 0 }
