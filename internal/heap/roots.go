package heap

import "fmt"

// RootType identifies why an object is a GC root.
type RootType string

const (
	RootUnknown     RootType = "UNKNOWN"
	RootJNIGlobal   RootType = "JNI_GLOBAL"
	RootJNILocal    RootType = "JNI_LOCAL"
	RootJavaFrame   RootType = "JAVA_FRAME"
	RootNativeStack RootType = "NATIVE_STACK"
	RootStickyClass RootType = "STICKY_CLASS"
	RootThreadBlock RootType = "THREAD_BLOCK"
	RootMonitorUsed RootType = "MONITOR_USED"
	RootThreadObj   RootType = "THREAD_OBJECT"
)

// Root is a GC root entry.
type Root struct {
	Object      int
	Type        RootType
	Description string
}

func (r *Root) String() string {
	if r.Description != "" {
		return fmt.Sprintf("GC root: %s (%s)", r.Description, r.Type)
	}
	return fmt.Sprintf("GC root: %s", r.Type)
}

// UnknownRoot stands for objects scanned without a known root.
var UnknownRoot = &Root{Object: NoRef, Type: RootUnknown, Description: "unreachable or unknown root"}
