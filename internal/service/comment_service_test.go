package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

func TestCommentsRespectVisibilityAndAuthorship(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	other := h.actor(t, "tina", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)
	stranger := h.actor(t, "steve", domain.RoleUser)

	created := h.create(t, user, "Phone", domain.TicketPriorityLow)
	_, err := h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)

	public, err := h.comments.Add(ctx, user, created.ID, "  still broken  ", false)
	require.NoError(t, err)
	assert.Equal(t, "still broken", public.Body)
	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 1)

	_, err = h.comments.Add(ctx, tech, created.ID, "escalate to vendor?", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.comments.Add(ctx, manager, created.ID, "vendor contract expired", true)
	require.NoError(t, err)
	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 1, "internal comments do not notify")

	_, err = h.comments.Add(ctx, stranger, created.ID, "me too", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.comments.Add(ctx, other, created.ID, "looking", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.comments.Add(ctx, user, created.ID, strings.Repeat("x", maxCommentLength+1), false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	visible, err := h.comments.List(ctx, user, created.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := h.comments.List(ctx, manager, created.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.comments.Edit(ctx, tech, public.ID, "hijacked")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	edited, err := h.comments.Edit(ctx, user, public.ID, "works after reboot")
	require.NoError(t, err)
	assert.Equal(t, "works after reboot", edited.Body)

	require.Error(t, h.comments.Delete(ctx, manager, public.ID))
	require.NoError(t, h.comments.Delete(ctx, user, public.ID))
	_, err = h.comments.Edit(ctx, user, public.ID, "gone")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
