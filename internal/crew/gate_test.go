package crew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/model"
)

func bandGig() *model.Gig {
	return &model.Gig{ID: 10, PostedBy: 100, IsClientBand: true}
}

func filledLedger() *ledger.Ledger {
	return &ledger.Ledger{Roles: []ledger.Role{
		{Name: "Role1", MaxSlots: 1, MaxApplicants: 5, FilledSlots: 1, Booked: []uint64{201}},
		{Name: "Role2", MaxSlots: 1, MaxApplicants: 5, FilledSlots: 1, Booked: []uint64{202}},
	}}
}

func TestEvaluate_NotOwner(t *testing.T) {
	v := Evaluate(bandGig(), filledLedger(), 999)
	assert.False(t, v.CanCreate)
	assert.Equal(t, ReasonNotOwner, v.Reason)
}

func TestEvaluate_NotBandGig(t *testing.T) {
	g := bandGig()
	g.IsClientBand = false
	v := Evaluate(g, filledLedger(), 100)
	assert.Equal(t, ReasonNotBandGig, v.Reason)
}

func TestEvaluate_AlreadyExists(t *testing.T) {
	g := bandGig()
	g.Chat = &model.CrewChat{ConversationID: "conv-1", ClientRole: model.ChatRoleAdmin}
	v := Evaluate(g, filledLedger(), 100)
	assert.Equal(t, ReasonAlreadyExists, v.Reason)
}

func TestEvaluate_RolesUnfilled(t *testing.T) {
	l := filledLedger()
	l.Roles[1].FilledSlots = 0
	l.Roles[1].Booked = nil

	v := Evaluate(bandGig(), l, 100)
	assert.False(t, v.CanCreate)
	assert.Equal(t, ReasonRolesUnfilled, v.Reason)
	assert.Equal(t, []string{"Role2"}, v.UnfilledRoles)
}

func TestEvaluate_NoBookings(t *testing.T) {
	// Degenerate sealed state: zero-capacity roles are full with nobody
	// booked, which must still block formation.
	l := &ledger.Ledger{Roles: []ledger.Role{{Name: "Role1", MaxSlots: 0}}}
	v := Evaluate(bandGig(), l, 100)
	assert.Equal(t, ReasonNoBookings, v.Reason)
}

func TestEvaluate_AllowsFormation(t *testing.T) {
	v := Evaluate(bandGig(), filledLedger(), 100)
	assert.True(t, v.CanCreate)
	assert.Empty(t, v.Reason)
	assert.Empty(t, v.UnfilledRoles)
}

func TestParticipants_OwnerFirstDeduplicated(t *testing.T) {
	l := filledLedger()
	l.Roles = append(l.Roles, ledger.Role{
		Name: "Role3", MaxSlots: 2, MaxApplicants: 5, FilledSlots: 2, Booked: []uint64{201, 100},
	})

	got := Participants(bandGig(), l)
	assert.Equal(t, []uint64{100, 201, 202}, got)
}

func TestParticipants_TwoRoleScenario(t *testing.T) {
	got := Participants(bandGig(), filledLedger())
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{100, 201, 202}, got)
}

func TestNormalizeClientRole(t *testing.T) {
	assert.Equal(t, model.ChatRoleAdmin, NormalizeClientRole(""))
	assert.Equal(t, model.ChatRoleAdmin, NormalizeClientRole("owner"))
	assert.Equal(t, model.ChatRoleAdmin, NormalizeClientRole(model.ChatRoleAdmin))
	assert.Equal(t, model.ChatRoleMember, NormalizeClientRole(model.ChatRoleMember))
}

func TestDefaultChatPermissions(t *testing.T) {
	admin := model.DefaultChatPermissions(model.ChatRoleAdmin)
	assert.True(t, admin.CanSendMessages)
	assert.True(t, admin.CanAddMembers)
	assert.True(t, admin.CanRemoveMembers)
	assert.True(t, admin.CanEditChatInfo)

	member := model.DefaultChatPermissions(model.ChatRoleMember)
	assert.True(t, member.CanSendMessages)
	assert.False(t, member.CanAddMembers)
	assert.False(t, member.CanRemoveMembers)
	assert.False(t, member.CanEditChatInfo)
}
