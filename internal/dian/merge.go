package dian

import (
	"fmt"

	"kila/internal"
	"kila/internal/util"
)

// Merge reconciles the locally computed result with the remote one. The
// local validator is authoritative: it ran synchronously against the exact
// document, while the remote service may apply a different or stale rule
// set. A remote finding whose normalized field identifier collides with any
// local finding is dropped and counted as a conflict; both source results
// are still carried on the combined record.
func Merge(local internal.ValidationResult, remote *internal.RemoteResult) internal.CombinedResult {
	if remote == nil || !remote.Success {
		return internal.CombinedResult{
			Success:  true,
			Errors:   local.Errors,
			Warnings: local.Warnings,
			Status:   determineStatus(local.Errors, local.Warnings),
			Message:  "Validación completada (solo frontend)",
			Local:    local,
			Remote:   remote,
			Source:   internal.SourceLocal,
		}
	}

	localFields := map[string]struct{}{}
	for _, f := range local.Errors {
		localFields[util.NormalizeFieldKey(f.Field)] = struct{}{}
	}
	for _, f := range local.Warnings {
		localFields[util.NormalizeFieldKey(f.Field)] = struct{}{}
	}

	mergedErrors := make([]internal.Finding, 0, len(local.Errors)+len(remote.Errors))
	mergedWarnings := make([]internal.Finding, 0, len(local.Warnings)+len(remote.Warnings))
	conflicts := 0

	for _, f := range local.Errors {
		f.Origin = internal.SourceLocal
		mergedErrors = append(mergedErrors, f)
	}
	for _, f := range local.Warnings {
		f.Origin = internal.SourceLocal
		mergedWarnings = append(mergedWarnings, f)
	}

	for _, f := range remote.Errors {
		if _, clash := localFields[util.NormalizeFieldKey(f.Field)]; clash {
			conflicts++
			continue
		}
		f.Origin = internal.SourceRemote
		f.Message = "[Backend] " + f.Message
		mergedErrors = append(mergedErrors, f)
	}
	for _, f := range remote.Warnings {
		if _, clash := localFields[util.NormalizeFieldKey(f.Field)]; clash {
			conflicts++
			continue
		}
		f.Origin = internal.SourceRemote
		f.Message = "[Backend] " + f.Message
		mergedWarnings = append(mergedWarnings, f)
	}

	message := "Validación completada (frontend y backend concuerdan)"
	if conflicts > 0 {
		message = fmt.Sprintf("Validación completada. Se priorizaron %d resultado(s) del frontend sobre el backend", conflicts)
	}

	return internal.CombinedResult{
		Success:      true,
		ValidationID: remote.ValidationID,
		Errors:       mergedErrors,
		Warnings:     mergedWarnings,
		Status:       determineStatus(mergedErrors, mergedWarnings),
		Message:      message,
		Local:        local,
		Remote:       remote,
		Source:       internal.SourceMerged,
		ConflictResolution: &internal.ConflictResolution{
			LocalPrioritized: true,
			ConflictsFound:   conflicts,
		},
	}
}

func determineStatus(errors, warnings []internal.Finding) internal.Status {
	if len(errors) > 0 {
		return internal.StatusRejected
	}
	if len(warnings) > 0 {
		return internal.StatusWarning
	}
	return internal.StatusApproved
}
