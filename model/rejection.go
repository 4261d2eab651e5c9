package model

import "fmt"

// RejectionCause tells why a measurement was marked invalid. Only the last
// failing check of an epoch is recorded.
type RejectionCause int

const (
	RejectNone RejectionCause = iota
	RejectMaskAngle
	RejectDataGap
	RejectMinSNRF1
	RejectMinSNRF2
	RejectMaxPSROutOfRangeF1
	RejectMaxPSROutOfRangeF2
	RejectMaxPhaseRateF1
	RejectMaxPhaseRateF2
	RejectMaxPhaseRateStepF1
	RejectMaxPhaseRateStepF2
	RejectMaxCodeRateF1
	RejectMaxCodeRateF2
	RejectMaxCodeRateStepF1
	RejectMaxCodeRateStepF2
	// RejectCycleSlip is reserved; no detector produces it yet.
	RejectCycleSlip
)

// NumRejectionCauses is the size of the closed enumeration including
// RejectNone.
const NumRejectionCauses = int(RejectCycleSlip) + 1

var causeNames = [NumRejectionCauses]string{
	"NONE",
	"MASKANGLE",
	"DATA_GAP",
	"MIN_SNR_F1",
	"MIN_SNR_F2",
	"MAX_PSR_OUTRNG_F1",
	"MAX_PSR_OUTRNG_F2",
	"MAX_PHASE_RATE_F1",
	"MAX_PHASE_RATE_F2",
	"MAX_PHASE_RATE_STEP_F1",
	"MAX_PHASE_RATE_STEP_F2",
	"MAX_CODE_RATE_F1",
	"MAX_CODE_RATE_F2",
	"MAX_CODE_RATE_STEP_F1",
	"MAX_CODE_RATE_STEP_F2",
	"CYCLE_SLIP",
}

var causeDescriptions = [NumRejectionCauses]string{
	"None",
	"Mask Angle",
	"Data Gap",
	"Minimum C/N0 in f1",
	"Minimum C/N0 in f2",
	"Maximum PR in f1",
	"Maximum PR in f2",
	"Maximum Phase Rate in f1",
	"Maximum Phase Rate in f2",
	"Maximum Phase Rate Step in f1",
	"Maximum Phase Rate Step in f2",
	"Maximum Code Rate in f1",
	"Maximum Code Rate in f2",
	"Maximum Code Rate Step in f1",
	"Maximum Code Rate Step in f2",
	"Cycle Slip",
}

// String returns the configuration-style name, e.g. "MIN_SNR_F1".
func (c RejectionCause) String() string {
	if c < 0 || int(c) >= NumRejectionCauses {
		return fmt.Sprintf("REJECTION_CAUSE(%d)", int(c))
	}
	return causeNames[c]
}

// Description returns the human label used in reports and plots.
func (c RejectionCause) Description() string {
	if c < 0 || int(c) >= NumRejectionCauses {
		return c.String()
	}
	return fmt.Sprintf("%d: %s", int(c), causeDescriptions[c])
}
