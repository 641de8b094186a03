package notify

// Complete state assignments understood by sd_notify supervisors. Use these
// with Notify directly or let the Client helpers compose them.
const (
	StateReady           = "READY=1"
	StateReloading       = "RELOADING=1"
	StateStopping        = "STOPPING=1"
	StateWatchdog        = "WATCHDOG=1"
	StateWatchdogTrigger = "WATCHDOG=trigger"
	StateFDStore         = "FDSTORE=1"
	StateFDStoreRemove   = "FDSTOREREMOVE=1"
)

// Assignment keys, for states that carry a value and for picking received
// notifications apart on the listening side.
const (
	KeyReady             = "READY"
	KeyReloading         = "RELOADING"
	KeyStopping          = "STOPPING"
	KeyStatus            = "STATUS"
	KeyErrno             = "ERRNO"
	KeyExitStatus        = "EXIT_STATUS"
	KeyMainPID           = "MAINPID"
	KeyWatchdog          = "WATCHDOG"
	KeyWatchdogUsec      = "WATCHDOG_USEC"
	KeyExtendTimeoutUsec = "EXTEND_TIMEOUT_USEC"
	KeyMonotonicUsec     = "MONOTONIC_USEC"
	KeyFDStore           = "FDSTORE"
	KeyFDStoreRemove     = "FDSTOREREMOVE"
	KeyFDName            = "FDNAME"
)
