package ledger

// DefaultMaxApplicants is the applicant-queue cap used when a role does not
// specify one.  It is the single source of the fallback; callers never
// hard-code it.
const DefaultMaxApplicants = 50

// Role is the in-memory view of one band role the ledger operates on.
// Applicants keeps queue order; Booked keeps booking order, earliest first,
// which is the order replacement eviction relies on.
type Role struct {
	Index            int
	Name             string
	MaxSlots         int
	FilledSlots      int
	MaxApplicants    int
	IsLocked         bool
	PriceCents       uint32
	Currency         string
	Negotiable       bool
	BookedPriceCents *uint32
	Applicants       []uint64
	Booked           []uint64
}

// IsFull reports whether every slot of the role is booked.
func (r *Role) IsFull() bool { return r.FilledSlots >= r.MaxSlots }

// AvailableSlots returns the number of open slots, never negative.
func (r *Role) AvailableSlots() int {
	if n := r.MaxSlots - r.FilledSlots; n > 0 {
		return n
	}
	return 0
}

// ApplicantCap returns the effective applicant-queue cap for the role.
func (r *Role) ApplicantCap() int {
	if r.MaxApplicants > 0 {
		return r.MaxApplicants
	}
	return DefaultMaxApplicants
}

// IsOverApplicantCap reports whether the applicant queue is at or beyond
// its cap, i.e. no further applications are accepted.
func (r *Role) IsOverApplicantCap() bool { return len(r.Applicants) >= r.ApplicantCap() }

// HasApplicant reports whether the user is in the applicant queue.
func (r *Role) HasApplicant(userID uint64) bool { return contains(r.Applicants, userID) }

// HasBooked reports whether the user is booked into the role.
func (r *Role) HasBooked(userID uint64) bool { return contains(r.Booked, userID) }

// Ledger is the authoritative per-gig role array.  It owns no storage; the
// repository materializes it inside a transaction and persists the result
// after mutations succeed.
type Ledger struct {
	Roles []Role
}

// Role returns a pointer to the role at the given index, or
// ErrRoleOutOfRange when the index does not exist.
func (l *Ledger) Role(index int) (*Role, error) {
	if index < 0 || index >= len(l.Roles) {
		return nil, ErrRoleOutOfRange
	}
	return &l.Roles[index], nil
}

// Sealed reports whether every role is at capacity.  An empty role list is
// never sealed.
func (l *Ledger) Sealed() bool {
	if len(l.Roles) == 0 {
		return false
	}
	for i := range l.Roles {
		if !l.Roles[i].IsFull() {
			return false
		}
	}
	return true
}

// HasBookings reports whether at least one booked member exists across all
// roles.
func (l *Ledger) HasBookings() bool {
	for i := range l.Roles {
		if len(l.Roles[i].Booked) > 0 {
			return true
		}
	}
	return false
}

// UnfilledRoles returns the names of roles still below capacity.
func (l *Ledger) UnfilledRoles() []string {
	var names []string
	for i := range l.Roles {
		if !l.Roles[i].IsFull() {
			names = append(names, l.Roles[i].Name)
		}
	}
	return names
}

// BookedUserIDs returns every booked user id across all roles, deduplicated,
// in role order then booking order.
func (l *Ledger) BookedUserIDs() []uint64 {
	seen := make(map[uint64]struct{})
	var ids []uint64
	for i := range l.Roles {
		for _, id := range l.Roles[i].Booked {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Mutation is one atomic change to a single role.  Implementations operate
// on a scratch copy; Apply only installs the result when both the mutation
// and the post-state invariant checks pass.
type Mutation interface {
	apply(r *Role) error
}

// Apply runs the mutation against the role at the given index.  On any
// failure the ledger is left untouched; there is no partial write.
func (l *Ledger) Apply(index int, m Mutation) error {
	if index < 0 || index >= len(l.Roles) {
		return ErrRoleOutOfRange
	}
	scratch := cloneRole(l.Roles[index])
	if err := m.apply(&scratch); err != nil {
		return err
	}
	if err := checkRole(&scratch); err != nil {
		return err
	}
	l.Roles[index] = scratch
	return nil
}

// Check validates every role's invariants.  It exists for callers that
// materialize a ledger from storage and want to fail fast on corrupt state.
func (l *Ledger) Check() error {
	for i := range l.Roles {
		if err := checkRole(&l.Roles[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddApplicant appends a user to the applicant queue.
type AddApplicant struct {
	UserID uint64
}

func (m AddApplicant) apply(r *Role) error {
	if r.IsLocked {
		return ErrRoleLocked
	}
	if r.IsFull() {
		return ErrRoleFull
	}
	if r.HasApplicant(m.UserID) {
		return ErrAlreadyApplied
	}
	if r.HasBooked(m.UserID) {
		return ErrAlreadyBooked
	}
	if r.IsOverApplicantCap() {
		return ErrApplicantCapReached
	}
	r.Applicants = append(r.Applicants, m.UserID)
	return nil
}

// RemoveApplicant drops a user from the applicant queue only.  It refuses
// when the user is booked: withdrawal of a booked member goes through
// Unbook instead.
type RemoveApplicant struct {
	UserID uint64
}

func (m RemoveApplicant) apply(r *Role) error {
	if !r.HasApplicant(m.UserID) {
		return ErrNotAssociated
	}
	r.Applicants = remove(r.Applicants, m.UserID)
	return nil
}

// Book confirms a user into a slot.  The user is removed from the
// applicant queue when present, appended to the booked order and counted
// against capacity.  PriceCents, when non-nil, becomes the agreed price;
// otherwise the role's listed price is kept.
type Book struct {
	UserID     uint64
	PriceCents *uint32
}

func (m Book) apply(r *Role) error {
	if r.HasBooked(m.UserID) {
		return ErrAlreadyBooked
	}
	if r.IsFull() {
		return ErrRoleFull
	}
	r.Applicants = remove(r.Applicants, m.UserID)
	r.Booked = append(r.Booked, m.UserID)
	r.FilledSlots++
	agreed := r.PriceCents
	if m.PriceCents != nil {
		agreed = *m.PriceCents
	}
	r.BookedPriceCents = &agreed
	return nil
}

// Unbook removes a booked member and frees the slot.  With
// BackToApplicants set the user re-enters the applicant queue (the unbook
// operation); without it the user leaves the role entirely (withdrawal of
// a booked member, or replacement eviction).
type Unbook struct {
	UserID           uint64
	BackToApplicants bool
}

func (m Unbook) apply(r *Role) error {
	if !r.HasBooked(m.UserID) {
		return ErrNotAssociated
	}
	r.Booked = remove(r.Booked, m.UserID)
	// A booked user must never linger in the applicant queue; drop any
	// stale entry before the optional re-add.
	r.Applicants = remove(r.Applicants, m.UserID)
	if r.FilledSlots == 0 {
		return ErrNegativeSlots
	}
	r.FilledSlots--
	if m.BackToApplicants {
		r.Applicants = append(r.Applicants, m.UserID)
	}
	return nil
}

// SetLocked flips the application lock on a role.
type SetLocked struct {
	Locked bool
}

func (m SetLocked) apply(r *Role) error {
	r.IsLocked = m.Locked
	return nil
}

// Incumbent returns the booked member a replacement booking evicts: the
// sole occupant for single-slot roles, the earliest-booked occupant for
// multi-slot roles.  The second return is false when nobody is booked.
func (r *Role) Incumbent() (uint64, bool) {
	if len(r.Booked) == 0 {
		return 0, false
	}
	return r.Booked[0], true
}

func checkRole(r *Role) error {
	if r.FilledSlots < 0 {
		return ErrNegativeSlots
	}
	if r.FilledSlots != len(r.Booked) {
		return ErrInvariantViolation
	}
	if r.FilledSlots > r.MaxSlots {
		return ErrRoleFull
	}
	if len(r.Applicants) > r.ApplicantCap() {
		return ErrApplicantCapReached
	}
	seen := make(map[uint64]struct{}, len(r.Applicants)+len(r.Booked))
	for _, id := range r.Applicants {
		if _, ok := seen[id]; ok {
			return ErrDuplicateMember
		}
		seen[id] = struct{}{}
	}
	for _, id := range r.Booked {
		if _, ok := seen[id]; ok {
			return ErrDuplicateMember
		}
		seen[id] = struct{}{}
	}
	return nil
}

func cloneRole(r Role) Role {
	out := r
	out.Applicants = append([]uint64(nil), r.Applicants...)
	out.Booked = append([]uint64(nil), r.Booked...)
	if r.BookedPriceCents != nil {
		v := *r.BookedPriceCents
		out.BookedPriceCents = &v
	}
	return out
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
