package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

const (
	teacherUserIDPrefix = "TCH-"
	studentUserIDPrefix = "SCH-"
	passwordAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
	passwordLength      = 8
)

type credentialUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type credentialTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type credentialStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// CredentialService issues login accounts for teachers and students. The plaintext password
// is returned once; only its bcrypt hash is stored.
type CredentialService struct {
	users    credentialUserRepository
	teachers credentialTeacherReader
	students credentialStudentReader
	notifier *ChangeNotifier
	logger   *zap.Logger
	password func() (string, error)
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(users credentialUserRepository, teachers credentialTeacherReader, students credentialStudentReader, notifier *ChangeNotifier, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{users: users, teachers: teachers, students: students, notifier: notifier, logger: logger, password: randomPassword}
}

// TeacherUserID derives TCH- followed by the first five letters of the name, spaces removed.
func TeacherUserID(name string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(name), ""))
	runes := []rune(compact)
	if len(runes) > 5 {
		runes = runes[:5]
	}
	return teacherUserIDPrefix + string(runes)
}

// StudentUserID derives SCH- followed by the upper-cased first name and the roll number.
func StudentUserID(name string, rollNumber int) string {
	first := ""
	if parts := strings.Fields(name); len(parts) > 0 {
		first = strings.ToUpper(parts[0])
	}
	return fmt.Sprintf("%s%s%d", studentUserIDPrefix, first, rollNumber)
}

// GenerateTeacherCredentials creates a Teacher account for an existing teacher.
func (s *CredentialService) GenerateTeacherCredentials(ctx context.Context, actor *models.Session, teacherID string) (*models.IssuedCredentials, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return nil, translateErr(err, "teacher not found", "failed to load teacher")
	}
	if strings.TrimSpace(teacher.Name) == "" {
		return nil, fieldError("teacher has no name", "name", "name is required to derive a user id")
	}
	return s.issue(ctx, actor, &models.User{
		UserID:      TeacherUserID(teacher.Name),
		Role:        models.RoleTeacher,
		DisplayName: teacher.Name,
	})
}

// GenerateStudentCredentials creates a Student account linked to the student record.
func (s *CredentialService) GenerateStudentCredentials(ctx context.Context, actor *models.Session, studentID string) (*models.IssuedCredentials, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, translateErr(err, "student not found", "failed to load student")
	}
	if !hasLetter(student.Name) {
		return nil, fieldError("student has no name", "name", "name is required to derive a user id")
	}
	id := student.ID
	return s.issue(ctx, actor, &models.User{
		UserID:      StudentUserID(student.Name, student.RollNumber),
		Role:        models.RoleStudent,
		StudentID:   &id,
		DisplayName: student.Name,
	})
}

func (s *CredentialService) issue(ctx context.Context, actor *models.Session, user *models.User) (*models.IssuedCredentials, error) {
	password, err := s.password()
	if err != nil {
		return nil, translateErr(err, "", "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, translateErr(err, "", "failed to hash password")
	}
	user.PasswordHash = string(hash)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, translateErr(err, "", "failed to create account")
	}

	s.notifier.Notify(ctx, models.CollectionUsers, models.ChangeAdded, user.ID)
	entry := &models.AuditLog{
		Action:     models.AuditActionCredentialsIssued,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"user_id":%q,"role":%q}`, user.UserID, user.Role)),
	}
	if actor != nil {
		entry.UserID = &actor.AccountID
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record credentials audit log", zap.Error(err))
	}

	return &models.IssuedCredentials{UserID: user.UserID, Password: password, Role: user.Role}, nil
}

func randomPassword() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < passwordLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
