package attestation

import (
	"crypto/sha512"
	"fmt"

	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
)

// maxExtendedMeasurements bounds how many caller-supplied blobs may be
// folded into reserved PCR slots.
const maxExtendedMeasurements = 16

// pcrBase is the first PCR index available for application use; 0-15 are
// reserved by the Nitro hypervisor for the enclave's own boot measurements.
const pcrBase = 16

// ExtendMeasurement extends one reserved PCR slot (16 and up) with each
// supplied blob, which the NSM folds in as SHA-384(previous value || blob),
// and then locks that slot, so that tampering with local configuration or
// pre-provisioned keys shows up in the enclave's own future attestations.
// It is meant to run once, at follower startup, before the handshake.
func ExtendMeasurement(measurements [][]byte) error {
	if len(measurements) > maxExtendedMeasurements {
		return fmt.Errorf("%w: at most %d measurements supported, got %d", ErrMalformedField, maxExtendedMeasurements, len(measurements))
	}

	sess, err := nsm.OpenDefaultSession()
	if err != nil {
		return fmt.Errorf("%w: open NSM session: %v", ErrAttestationUnavailable, err)
	}
	defer sess.Close()

	for i, data := range measurements {
		index := uint16(pcrBase + i)

		describeRes, err := sess.Send(&request.DescribePCR{Index: index})
		if err != nil {
			return fmt.Errorf("%w: describe PCR%d: %v", ErrAttestationUnavailable, index, err)
		}
		if describeRes.DescribePCR == nil {
			return fmt.Errorf("%w: cannot describe PCR%d", ErrAttestationUnavailable, index)
		}
		if describeRes.DescribePCR.Lock {
			return fmt.Errorf("%w: PCR%d is locked", ErrAttestationUnavailable, index)
		}

		extendRes, err := sess.Send(&request.ExtendPCR{Index: index, Data: data})
		if err != nil {
			return fmt.Errorf("%w: extend PCR%d: %v", ErrAttestationUnavailable, index, err)
		}
		if extendRes.ExtendPCR == nil {
			return fmt.Errorf("%w: cannot extend PCR%d", ErrAttestationUnavailable, index)
		}

		want := sha512.Sum384(append(make([]byte, 48), data...))
		if !byteEqual(extendRes.ExtendPCR.Data, want[:]) {
			return fmt.Errorf("%w: extension mismatch for PCR%d", ErrMalformedField, index)
		}

		if _, err := sess.Send(&request.LockPCR{Index: index}); err != nil {
			return fmt.Errorf("%w: lock PCR%d: %v", ErrAttestationUnavailable, index, err)
		}
	}

	return nil
}
