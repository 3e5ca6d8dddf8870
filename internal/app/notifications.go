package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmasaiti/zimproperty/internal/domain"
)

func linkURL(format string, args ...any) *string {
	link := fmt.Sprintf(format, args...)
	return &link
}

func agentRegistrationNotification(user domain.User) domain.Notification {
	return domain.Notification{
		Title:   "New Agent Registration",
		Message: fmt.Sprintf("%s (%s) has registered as an agent and is waiting for verification.", user.FullName(), user.Email),
		Type:    domain.NotificationAgentVerification,
		LinkURL: linkURL("/admin"),
	}
}

func newPropertyNotification(agentID int64, event domain.PropertyCreatedEvent) domain.Notification {
	dedupe := fmt.Sprintf("%s:%d:%d", domain.NotificationNewProperty, event.PropertyID, agentID)
	return domain.Notification{
		UserID:    agentID,
		Title:     "New Property Listing",
		Message:   fmt.Sprintf("A new %s property is available in %s for $%s.", event.Type, event.Location, event.Price),
		Type:      domain.NotificationNewProperty,
		LinkURL:   linkURL("/agent/property/%d", event.PropertyID),
		DedupeKey: &dedupe,
	}
}

func leadPurchaseNotification(propertyID int64) domain.Notification {
	return domain.Notification{
		Title:   "Lead Purchased",
		Message: "An agent has purchased your property listing and will contact you soon.",
		Type:    domain.NotificationLeadPurchase,
		LinkURL: linkURL("/seller/property/%d", propertyID),
	}
}

func subscriptionActivatedNotification(sub domain.Subscription) domain.Notification {
	return domain.Notification{
		Title: "Subscription Activated",
		Message: fmt.Sprintf("Your %s subscription has been activated and is valid until %s.",
			strings.ReplaceAll(string(sub.Type), "_", " "), sub.EndDate.Format("2006-01-02")),
		Type: domain.NotificationSubscriptionActivated,
	}
}

func verificationNotification(status domain.VerificationStatus, note string) domain.Notification {
	if status == domain.VerificationApproved {
		return domain.Notification{
			Title:   "Account Verification Approved",
			Message: "Your agent account has been verified. You can now purchase leads.",
			Type:    domain.NotificationVerificationUpdate,
		}
	}
	if note == "" {
		note = "No reason provided"
	}
	return domain.Notification{
		Title:   "Account Verification Rejected",
		Message: fmt.Sprintf("Your agent account verification was rejected. Reason: %s", note),
		Type:    domain.NotificationVerificationUpdate,
	}
}

func listingRemovedNotification(propertyID int64, reason string) domain.Notification {
	return domain.Notification{
		Title:   "Listing Removed",
		Message: fmt.Sprintf("Your property listing #%d was removed by an administrator. Reason: %s", propertyID, reason),
		Type:    domain.NotificationListingRemoved,
		LinkURL: linkURL("/seller/property/%d", propertyID),
	}
}

func flagResolvedNotification(propertyID int64, action domain.FlagAction, reason string) domain.Notification {
	message := fmt.Sprintf("Your report on property #%d was reviewed and the listing remains available.", propertyID)
	if action == domain.FlagActionRemove {
		message = fmt.Sprintf("Your report on property #%d was upheld and the listing has been removed.", propertyID)
	}
	if reason != "" {
		message += " Note: " + reason
	}
	return domain.Notification{
		Title:   "Flag Reviewed",
		Message: message,
		Type:    domain.NotificationFlagResolved,
		LinkURL: linkURL("/agent/property/%d", propertyID),
	}
}

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, user *domain.User) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx, user.ID)
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, user *domain.User, notificationID int64) (*domain.Notification, error) {
	return s.repo.MarkNotificationRead(ctx, user.ID, notificationID)
}

// MarkAllNotificationsRead marks every unread notification of the caller read.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, user *domain.User) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, user.ID)
}
