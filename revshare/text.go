package revshare

import "fmt"

// Statuses encode as their names in JSON and other text formats. The zero
// value encodes as the empty string.

func (s VerificationStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid VerificationStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *VerificationStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseVerificationStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SplitStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid SplitStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SplitStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseSplitStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SessionStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid SessionStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SessionStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseSessionStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s InvitationStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid InvitationStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *InvitationStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseInvitationStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s DistributionStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid DistributionStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DistributionStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseDistributionStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s ClaimStatus) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid ClaimStatus %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ClaimStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseClaimStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
