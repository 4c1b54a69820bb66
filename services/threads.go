package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"chatbridge/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

const DEFAULT_PAGE_SIZE = 50
const MAX_PAGE_SIZE = 200

// ThreadService is the chat store: threads, participants and the ordered
// message log of each thread.
type ThreadService struct {
	db        *gorm.DB
	directory *Directory
	locks     *KeyedMutex
	pusher    Pusher
}

func NewThreadService(db *gorm.DB, directory *Directory, locks *KeyedMutex, pusher Pusher) *ThreadService {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &ThreadService{db: db, directory: directory, locks: locks, pusher: pusher}
}

func withParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("chat_participants.position asc, chat_participants.id asc")
	})
}

/************************************************
/**** MARK: THREADS ****/
/************************************************/

func (s *ThreadService) GetThread(ctx context.Context, id string) (*models.ChatThread, error) {
	var thread models.ChatThread
	if err := withParticipants(s.db).Where("id = ?", id).First(&thread).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, notFound("chat", id)
		}
		return nil, fmt.Errorf("threads: load %s: %w", id, err)
	}
	return &thread, nil
}

// ListThreads returns the threads userID takes part in, most recent first.
func (s *ThreadService) ListThreads(ctx context.Context, userID int64) ([]models.ChatThread, error) {
	var ids []string
	err := s.db.Model(&models.ChatParticipant{}).Where("user_id = ?", userID).Pluck("thread_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("threads: list for user %d: %w", userID, err)
	}
	threads := []models.ChatThread{}
	if len(ids) == 0 {
		return threads, nil
	}
	err = withParticipants(s.db).Where("id IN (?)", ids).
		Order("last_activity desc").Order("created_at desc").Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("threads: list for user %d: %w", userID, err)
	}
	return threads, nil
}

// CreateGroup opens a group with creator as admin and the given members.
func (s *ThreadService) CreateGroup(ctx context.Context, title string, creator models.User, memberIDs []int64) (*models.ChatThread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: group title is required", ErrInvalidInput)
	}

	participants := []models.ChatParticipant{models.ParticipantFromUser(creator, models.PARTICIPANT_ROLE_ADMIN)}
	seen := map[int64]bool{creator.ID: true}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		user, err := s.directory.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		participants = append(participants, models.ParticipantFromUser(*user, models.PARTICIPANT_ROLE_MEMBER))
	}

	thread := models.ChatThread{
		Type:    models.THREAD_TYPE_GROUP,
		Title:   title,
		Sources: models.CHAT_SOURCE_INTERNAL,
	}
	return s.create(ctx, &thread, participants)
}

// CreateDirect returns the 1:1 thread between a and otherID, creating it on
// first use.
func (s *ThreadService) CreateDirect(ctx context.Context, a models.User, otherID int64) (*models.ChatThread, error) {
	if a.ID == otherID {
		return nil, fmt.Errorf("%w: cannot open a direct chat with yourself", ErrInvalidInput)
	}
	other, err := s.directory.Get(ctx, otherID)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = s.db.Model(&models.ChatThread{}).
		Joins("JOIN chat_participants pa ON pa.thread_id = chat_threads.id AND pa.user_id = ?", a.ID).
		Joins("JOIN chat_participants pb ON pb.thread_id = chat_threads.id AND pb.user_id = ?", other.ID).
		Where("chat_threads.type = ?", models.THREAD_TYPE_DIRECT).
		Pluck("chat_threads.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("threads: find direct: %w", err)
	}
	if len(ids) > 0 {
		return s.GetThread(ctx, ids[0])
	}

	thread := models.ChatThread{Type: models.THREAD_TYPE_DIRECT, Sources: models.CHAT_SOURCE_INTERNAL}
	return s.create(ctx, &thread, []models.ChatParticipant{
		models.ParticipantFromUser(a, models.PARTICIPANT_ROLE_ADMIN),
		models.ParticipantFromUser(*other, models.PARTICIPANT_ROLE_ADMIN),
	})
}

// CreateClientThread opens an internal conversation about a CRM client.
func (s *ThreadService) CreateClientThread(ctx context.Context, clientID, clientName string, owner models.User) (*models.ChatThread, error) {
	thread, err := clientThread(clientID, clientName)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &thread, []models.ChatParticipant{models.ParticipantFromUser(owner, models.PARTICIPANT_ROLE_ADMIN)})
}

func clientThread(clientID, clientName string) (models.ChatThread, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return models.ChatThread{}, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	clientName = strings.TrimSpace(clientName)
	return models.ChatThread{
		Type:       models.THREAD_TYPE_CLIENT,
		Title:      clientName,
		ClientID:   clientID,
		ClientName: clientName,
		Sources:    models.CHAT_SOURCE_INTERNAL,
	}, nil
}

// CreateBridgedThread opens the client thread for a WhatsApp number seen for
// the first time. The bridge actor owns it; watcher (may be nil) is the user
// who gets to see and answer the conversation.
func (s *ThreadService) CreateBridgedThread(ctx context.Context, number, contactName string, watcher *models.User) (*models.ChatThread, error) {
	title := strings.TrimSpace(contactName)
	clientName := title
	if title == "" {
		title = "WhatsApp +" + number
		clientName = "+" + number
	}

	participants := []models.ChatParticipant{models.SystemParticipant()}
	if watcher != nil {
		participants = append(participants, models.ParticipantFromUser(*watcher, models.PARTICIPANT_ROLE_ADMIN))
	}

	thread := models.ChatThread{
		Type:                 models.THREAD_TYPE_CLIENT,
		Title:                title,
		ClientID:             number,
		ClientName:           clientName,
		WhatsAppNumber:       &number,
		IsWhatsAppIntegrated: true,
		Sources:              models.CHAT_SOURCE_WHATSAPP,
	}
	return s.create(ctx, &thread, participants)
}

func (s *ThreadService) create(ctx context.Context, thread *models.ChatThread, participants []models.ChatParticipant) (*models.ChatThread, error) {
	if missing := thread.MissingFields(); missing != "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidInput, missing)
	}
	thread.ID = uuid.NewString()
	ts := now()
	thread.LastActivity = &ts
	for i := range participants {
		participants[i].Position = i
	}
	thread.Participants = participants

	if err := s.db.Create(thread).Error; err != nil {
		return nil, fmt.Errorf("threads: create: %w", err)
	}
	s.pusher.Push(thread.ParticipantIDs(), EVENT_THREAD_UPDATED, thread)
	return thread, nil
}

// FindByNumber returns the thread bridged to number, or nil.
func (s *ThreadService) FindByNumber(ctx context.Context, number string) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := withParticipants(s.db).
		Where("whatsapp_number = ? AND is_whatsapp_integrated = ?", number, true).
		First(&thread).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("threads: find by number: %w", err)
	}
	return &thread, nil
}

// DeleteGroup removes a group thread with its messages, participants and
// pending status jobs.
func (s *ThreadService) DeleteGroup(ctx context.Context, threadID string) error {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.Type != models.THREAD_TYPE_GROUP {
		return fmt.Errorf("%w: only groups can be deleted", ErrForbidden)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", threadID).Delete(&models.StatusJob{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", threadID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", threadID).Delete(&models.ChatParticipant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", threadID).Delete(&models.ChatThread{}).Error
	})
	if err != nil {
		return fmt.Errorf("threads: delete %s: %w", threadID, err)
	}

	s.pusher.Push(thread.ParticipantIDs(), EVENT_THREAD_DELETED, map[string]string{"thread_id": threadID})
	return nil
}

func (s *ThreadService) MarkRead(ctx context.Context, threadID string) error {
	res := s.db.Model(&models.ChatThread{}).Where("id = ?", threadID).Updates(map[string]any{"unread_count": 0})
	if res.Error != nil {
		return fmt.Errorf("threads: mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("chat", threadID)
	}
	return nil
}

/************************************************
/**** MARK: PARTICIPANTS ****/
/************************************************/

// AddParticipant is idempotent: adding a member twice leaves one row.
func (s *ThreadService) AddParticipant(ctx context.Context, threadID string, userID int64) (*models.ChatThread, error) {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Type == models.THREAD_TYPE_DIRECT {
		return nil, fmt.Errorf("%w: direct chats have fixed participants", ErrForbidden)
	}
	if thread.HasParticipant(userID) {
		return thread, nil
	}
	user, err := s.directory.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := models.ParticipantFromUser(*user, models.PARTICIPANT_ROLE_MEMBER)
	p.ThreadID = threadID
	p.Position = len(thread.Participants)
	if err := s.db.Create(&p).Error; err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("threads: add participant: %w", err)
	}
	return s.touched(ctx, threadID)
}

func (s *ThreadService) RemoveParticipant(ctx context.Context, threadID string, userID int64) (*models.ChatThread, error) {
	if userID == models.SYSTEM_ACTOR_ID {
		return nil, fmt.Errorf("%w: the bridge participant cannot be removed", ErrForbidden)
	}
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Type == models.THREAD_TYPE_DIRECT {
		return nil, fmt.Errorf("%w: direct chats have fixed participants", ErrForbidden)
	}
	res := s.db.Where("thread_id = ? AND user_id = ?", threadID, userID).Delete(&models.ChatParticipant{})
	if res.Error != nil {
		return nil, fmt.Errorf("threads: remove participant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("participant", strconv.FormatInt(userID, 10))
	}
	// quem saiu também precisa atualizar a lista
	s.pusher.Push([]int64{userID}, EVENT_THREAD_DELETED, map[string]string{"thread_id": threadID})
	return s.touched(ctx, threadID)
}

// PromoteParticipant gives userID the admin role in the thread.
func (s *ThreadService) PromoteParticipant(ctx context.Context, threadID string, userID int64) (*models.ChatThread, error) {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, notFound("participant", strconv.FormatInt(userID, 10))
	}
	err = s.db.Model(&models.ChatParticipant{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Updates(map[string]any{"role": models.PARTICIPANT_ROLE_ADMIN}).Error
	if err != nil {
		return nil, fmt.Errorf("threads: promote participant: %w", err)
	}
	return s.touched(ctx, threadID)
}

func (s *ThreadService) touched(ctx context.Context, threadID string) (*models.ChatThread, error) {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	s.pusher.Push(thread.ParticipantIDs(), EVENT_THREAD_UPDATED, thread)
	return thread, nil
}

/************************************************
/**** MARK: MESSAGES ****/
/************************************************/

// AppendMessage assigns the next Seq of the thread and stores msg. The thread
// aggregate (last activity, sources, unread counter) follows in the same
// critical section.
func (s *ThreadService) AppendMessage(ctx context.Context, thread *models.ChatThread, msg *models.Message, countUnread bool) error {
	unlock := s.locks.Lock("thread:" + thread.ID)
	defer unlock()

	var maxSeq int64
	row := s.db.Model(&models.Message{}).Where("thread_id = ?", thread.ID).Select("COALESCE(MAX(seq), 0)").Row()
	if err := row.Scan(&maxSeq); err != nil {
		return fmt.Errorf("threads: next seq: %w", err)
	}

	msg.ThreadID = thread.ID
	msg.Seq = maxSeq + 1
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now()
	}
	if msg.Type == "" {
		msg.Type = models.MESSAGE_TYPE_TEXT
	}
	if msg.Status == "" {
		msg.Status = models.MESSAGE_STATUS_SENT
	}
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("threads: append: %w", err)
	}

	var current models.ChatThread
	if err := s.db.Select("id, sources").Where("id = ?", thread.ID).First(&current).Error; err != nil {
		return fmt.Errorf("threads: reload %s: %w", thread.ID, err)
	}
	sources := current.SourceSet().With(msg.Source)
	ts := msg.Timestamp
	updates := map[string]any{"last_activity": ts, "sources": sources.String()}
	if countUnread {
		updates["unread_count"] = gorm.Expr("unread_count + ?", 1)
	}
	if err := s.db.Model(&models.ChatThread{}).Where("id = ?", thread.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("threads: update aggregate: %w", err)
	}
	thread.Sources = sources.String()
	thread.LastActivity = &ts

	s.pusher.Push(thread.ParticipantIDs(), EVENT_MESSAGE, msg.View())
	return nil
}

// HasProviderMessage reports whether a WhatsApp message id was already stored.
func (s *ThreadService) HasProviderMessage(ctx context.Context, providerID string) (bool, error) {
	var count int
	if err := s.db.Model(&models.Message{}).Where("provider_message_id = ?", providerID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("threads: lookup provider id: %w", err)
	}
	return count > 0, nil
}

// ListMessages returns up to limit messages in append order. beforeSeq > 0
// pages backwards from that point.
func (s *ThreadService) ListMessages(ctx context.Context, threadID string, limit int, beforeSeq int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = DEFAULT_PAGE_SIZE
	}
	if limit > MAX_PAGE_SIZE {
		limit = MAX_PAGE_SIZE
	}
	q := s.db.Where("thread_id = ?", threadID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	var msgs []models.Message
	if err := q.Order("seq desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("threads: list messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *ThreadService) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.Where("id = ?", id).First(&msg).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, notFound("message", id)
		}
		return nil, fmt.Errorf("threads: load message %s: %w", id, err)
	}
	return &msg, nil
}

// EditMessage replaces the content of a message. Only its sender may edit it.
func (s *ThreadService) EditMessage(ctx context.Context, messageID string, editorID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != strconv.FormatInt(editorID, 10) {
		return nil, fmt.Errorf("%w: only the sender can edit a message", ErrForbidden)
	}

	err = s.db.Model(&models.Message{}).Where("id = ?", messageID).
		Updates(map[string]any{"content": content, "edited": true}).Error
	if err != nil {
		return nil, fmt.Errorf("threads: edit message: %w", err)
	}
	msg.Content = content
	msg.Edited = true
	s.pushMessageUpdate(ctx, msg)
	return msg, nil
}

// ToggleImportant flips the important flag and returns the new value.
func (s *ThreadService) ToggleImportant(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg.IsImportant = !msg.IsImportant
	err = s.db.Model(&models.Message{}).Where("id = ?", messageID).
		Updates(map[string]any{"is_important": msg.IsImportant}).Error
	if err != nil {
		return nil, fmt.Errorf("threads: toggle important: %w", err)
	}
	s.pushMessageUpdate(ctx, msg)
	return msg, nil
}

func (s *ThreadService) pushMessageUpdate(ctx context.Context, msg *models.Message) {
	ids, err := s.participantIDs(msg.ThreadID)
	if err != nil {
		zap.L().Warn("threads: load participants for push", zap.String("thread", msg.ThreadID), zap.Error(err))
		return
	}
	s.pusher.Push(ids, EVENT_MESSAGE_UPDATED, msg.View())
}

func (s *ThreadService) participantIDs(threadID string) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&models.ChatParticipant{}).
		Where("thread_id = ? AND user_id <> ?", threadID, models.SYSTEM_ACTOR_ID).
		Pluck("user_id", &ids).Error
	return ids, err
}
