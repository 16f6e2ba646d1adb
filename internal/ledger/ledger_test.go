package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSlotRole() Role {
	return Role{Index: 0, Name: "Drums", MaxSlots: 2, MaxApplicants: 10}
}

func TestApply_AddApplicant(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}

	require.NoError(t, l.Apply(0, AddApplicant{UserID: 7}))
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 9}))

	assert.Equal(t, []uint64{7, 9}, l.Roles[0].Applicants)
	assert.Equal(t, 0, l.Roles[0].FilledSlots)
}

func TestApply_AddApplicant_Duplicate(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 7}))

	err := l.Apply(0, AddApplicant{UserID: 7})
	assert.ErrorIs(t, err, ErrAlreadyApplied)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Len(t, l.Roles[0].Applicants, 1, "ledger must be unchanged on failure")
}

func TestApply_AddApplicant_LockedRole(t *testing.T) {
	r := twoSlotRole()
	r.IsLocked = true
	l := &Ledger{Roles: []Role{r}}

	assert.ErrorIs(t, l.Apply(0, AddApplicant{UserID: 7}), ErrRoleLocked)
}

func TestApply_AddApplicant_FullRole(t *testing.T) {
	r := Role{Name: "Bassist", MaxSlots: 1, MaxApplicants: 5}
	l := &Ledger{Roles: []Role{r}}
	require.NoError(t, l.Apply(0, Book{UserID: 1}))

	assert.ErrorIs(t, l.Apply(0, AddApplicant{UserID: 2}), ErrRoleFull)
}

func TestApply_AddApplicant_CapReached(t *testing.T) {
	r := Role{Name: "Bassist", MaxSlots: 1, MaxApplicants: 2}
	l := &Ledger{Roles: []Role{r}}
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 1}))
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 2}))

	assert.ErrorIs(t, l.Apply(0, AddApplicant{UserID: 3}), ErrApplicantCapReached)
}

func TestApplicantCap_Default(t *testing.T) {
	r := Role{MaxSlots: 1}
	assert.Equal(t, DefaultMaxApplicants, r.ApplicantCap())

	r.MaxApplicants = 3
	assert.Equal(t, 3, r.ApplicantCap())
}

func TestApply_Book_MovesApplicantIntoSeat(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 7}))
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 9}))

	price := uint32(15000)
	require.NoError(t, l.Apply(0, Book{UserID: 7, PriceCents: &price}))

	r := l.Roles[0]
	assert.Equal(t, []uint64{9}, r.Applicants)
	assert.Equal(t, []uint64{7}, r.Booked)
	assert.Equal(t, 1, r.FilledSlots)
	require.NotNil(t, r.BookedPriceCents)
	assert.Equal(t, price, *r.BookedPriceCents)
}

func TestApply_Book_DefaultsToListedPrice(t *testing.T) {
	r := twoSlotRole()
	r.PriceCents = 9000
	l := &Ledger{Roles: []Role{r}}

	require.NoError(t, l.Apply(0, Book{UserID: 7}))
	require.NotNil(t, l.Roles[0].BookedPriceCents)
	assert.Equal(t, uint32(9000), *l.Roles[0].BookedPriceCents)
}

func TestApply_Book_DirectWithoutApplication(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}

	require.NoError(t, l.Apply(0, Book{UserID: 42}))
	assert.Equal(t, []uint64{42}, l.Roles[0].Booked)
}

func TestApply_Book_FullRole(t *testing.T) {
	r := Role{Name: "Bassist", MaxSlots: 1, MaxApplicants: 5}
	l := &Ledger{Roles: []Role{r}}
	require.NoError(t, l.Apply(0, Book{UserID: 1}))

	err := l.Apply(0, Book{UserID: 2})
	assert.ErrorIs(t, err, ErrRoleFull)
	assert.Equal(t, []uint64{1}, l.Roles[0].Booked)
}

func TestApply_Book_AlreadyBooked(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, Book{UserID: 1}))

	assert.ErrorIs(t, l.Apply(0, Book{UserID: 1}), ErrAlreadyBooked)
}

func TestApply_Unbook_BackToApplicants(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, Book{UserID: 1}))

	require.NoError(t, l.Apply(0, Unbook{UserID: 1, BackToApplicants: true}))
	r := l.Roles[0]
	assert.Empty(t, r.Booked)
	assert.Equal(t, []uint64{1}, r.Applicants)
	assert.Equal(t, 0, r.FilledSlots)
}

func TestApply_Unbook_Withdrawal(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, Book{UserID: 1}))

	require.NoError(t, l.Apply(0, Unbook{UserID: 1}))
	r := l.Roles[0]
	assert.Empty(t, r.Booked)
	assert.Empty(t, r.Applicants)
	assert.Equal(t, 0, r.FilledSlots)
}

func TestApply_Unbook_NotAssociated(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	assert.ErrorIs(t, l.Apply(0, Unbook{UserID: 5}), ErrNotAssociated)
}

func TestApply_RemoveApplicant(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, AddApplicant{UserID: 5}))

	require.NoError(t, l.Apply(0, RemoveApplicant{UserID: 5}))
	assert.Empty(t, l.Roles[0].Applicants)

	assert.ErrorIs(t, l.Apply(0, RemoveApplicant{UserID: 5}), ErrNotAssociated)
}

func TestApply_RoleOutOfRange(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	assert.ErrorIs(t, l.Apply(2, AddApplicant{UserID: 1}), ErrRoleOutOfRange)
	assert.ErrorIs(t, l.Apply(-1, AddApplicant{UserID: 1}), ErrRoleOutOfRange)
}

func TestIncumbent_EarliestBooked(t *testing.T) {
	l := &Ledger{Roles: []Role{twoSlotRole()}}
	require.NoError(t, l.Apply(0, Book{UserID: 11}))
	require.NoError(t, l.Apply(0, Book{UserID: 22}))

	id, ok := l.Roles[0].Incumbent()
	require.True(t, ok)
	assert.Equal(t, uint64(11), id)
}

func TestSealed_AndUnsealOnUnbook(t *testing.T) {
	l := &Ledger{Roles: []Role{
		{Name: "Vocals", MaxSlots: 1, MaxApplicants: 5},
		{Name: "Keys", MaxSlots: 1, MaxApplicants: 5},
	}}
	assert.False(t, l.Sealed())

	require.NoError(t, l.Apply(0, Book{UserID: 1}))
	assert.False(t, l.Sealed())
	require.NoError(t, l.Apply(1, Book{UserID: 2}))
	assert.True(t, l.Sealed())
	assert.Empty(t, l.UnfilledRoles())

	require.NoError(t, l.Apply(1, Unbook{UserID: 2, BackToApplicants: true}))
	assert.False(t, l.Sealed())
	assert.Equal(t, []string{"Keys"}, l.UnfilledRoles())
}

func TestBookedUserIDs_Deduplicated(t *testing.T) {
	l := &Ledger{Roles: []Role{
		{Name: "Vocals", MaxSlots: 2, MaxApplicants: 5, FilledSlots: 2, Booked: []uint64{3, 1}},
		{Name: "Keys", MaxSlots: 2, MaxApplicants: 5, FilledSlots: 2, Booked: []uint64{1, 2}},
	}}
	assert.Equal(t, []uint64{3, 1, 2}, l.BookedUserIDs())
}

func TestCheck_DetectsCorruptState(t *testing.T) {
	l := &Ledger{Roles: []Role{
		{Name: "Keys", MaxSlots: 1, MaxApplicants: 5, FilledSlots: 2, Booked: []uint64{1, 2}},
	}}
	assert.ErrorIs(t, l.Check(), ErrRoleFull)

	l = &Ledger{Roles: []Role{
		{Name: "Keys", MaxSlots: 2, MaxApplicants: 5, FilledSlots: 1, Booked: []uint64{1}, Applicants: []uint64{1}},
	}}
	assert.ErrorIs(t, l.Check(), ErrDuplicateMember)
}

// Scenario from the product brief: single-slot Bassist role with an
// applicant cap of two, ending in a replacement booking.
func TestScenario_BassistReplacement(t *testing.T) {
	l := &Ledger{Roles: []Role{{Name: "Bassist", MaxSlots: 1, MaxApplicants: 2}}}
	a, b, c := uint64(1), uint64(2), uint64(3)

	require.NoError(t, l.Apply(0, AddApplicant{UserID: a}))
	require.NoError(t, l.Apply(0, AddApplicant{UserID: b}))
	assert.ErrorIs(t, l.Apply(0, AddApplicant{UserID: c}), ErrApplicantCapReached)

	require.NoError(t, l.Apply(0, Book{UserID: a}))
	assert.Equal(t, []uint64{b}, l.Roles[0].Applicants)
	assert.Equal(t, []uint64{a}, l.Roles[0].Booked)
	assert.Equal(t, 1, l.Roles[0].FilledSlots)

	// Replacement: evict the incumbent, then book B into the freed slot.
	incumbent, ok := l.Roles[0].Incumbent()
	require.True(t, ok)
	assert.Equal(t, a, incumbent)
	require.NoError(t, l.Apply(0, Unbook{UserID: incumbent}))
	require.NoError(t, l.Apply(0, Book{UserID: b}))

	assert.Equal(t, []uint64{b}, l.Roles[0].Booked)
	assert.Empty(t, l.Roles[0].Applicants)
	assert.Equal(t, 1, l.Roles[0].FilledSlots)
}

// Disjointness and the capacity equality must hold after any sequence of
// successful mutations.
func TestInvariants_HoldAcrossMutations(t *testing.T) {
	l := &Ledger{Roles: []Role{{Name: "Horns", MaxSlots: 2, MaxApplicants: 4}}}
	steps := []Mutation{
		AddApplicant{UserID: 1},
		AddApplicant{UserID: 2},
		Book{UserID: 1},
		AddApplicant{UserID: 3},
		Book{UserID: 3},
		Unbook{UserID: 1, BackToApplicants: true},
		Book{UserID: 2},
	}
	for _, m := range steps {
		require.NoError(t, l.Apply(0, m))
		require.NoError(t, l.Check())
		r := l.Roles[0]
		assert.Equal(t, len(r.Booked), r.FilledSlots)
		for _, id := range r.Booked {
			assert.False(t, r.HasApplicant(id))
		}
	}
}
