// Package apcore implements the federation core of an ActivityPub server:
// identifiers and signatures, ingress and egress, the job queues and
// scheduler that drive them, and the ambient config/logging/CLI scaffolding
// around them.
//
// Host programs supply an Instance and call Run.
package apcore

const (
	apcoreName         = "apcore"
	apcoreMajorVersion = 0
	apcoreMinorVersion = 1
	apcorePatchVersion = 0
)

func apCoreSoftware() Software {
	return Software{
		Name:         apcoreName,
		MajorVersion: apcoreMajorVersion,
		MinorVersion: apcoreMinorVersion,
		PatchVersion: apcorePatchVersion,
	}
}
