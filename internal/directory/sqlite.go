package directory

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"kiosk/internal/identifier"
	"kiosk/internal/services"
	"kiosk/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current directory schema version.
const schemaVersion = 1

// Member is the administrative view of a directory entry.
type Member struct {
	MemberID     string
	GreetingName string
	AvatarURL    string
	Cards        []string
	Numbers      []string
	UpdatedAt    time.Time
}

// Profile converts the member into its greeting profile.
func (m Member) Profile() Profile {
	return Profile{MemberID: m.MemberID, DisplayName: m.GreetingName, AvatarURL: m.AvatarURL}
}

// SQLiteDirectory is a Directory backed by a SQLite database.
type SQLiteDirectory struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the directory database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDirectory, error) {
	db, err := sqlitedb.Open(ctx, path, sqlitedb.Schema{Name: "directory", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &SQLiteDirectory{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (d *SQLiteDirectory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Lookup resolves a member number or card serial to a profile.
func (d *SQLiteDirectory) Lookup(ctx context.Context, id identifier.ID) (Profile, bool, error) {
	var query string
	switch id.Kind() {
	case identifier.KindMemberNumber:
		query = `SELECT m.member_id, m.greeting_name, m.avatar_url
                 FROM member_numbers n JOIN members m ON m.member_id = n.member_id
                 WHERE n.number = ?`
	case identifier.KindCardSerial:
		query = `SELECT m.member_id, m.greeting_name, m.avatar_url
                 FROM card_serials c JOIN members m ON m.member_id = c.member_id
                 WHERE c.serial = ?`
	default:
		return Profile{}, false, nil
	}

	var profile Profile
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		return d.db.QueryRowContext(ctx, query, string(id)).Scan(&profile.MemberID, &profile.DisplayName, &profile.AvatarURL)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, services.Wrap(services.ErrTransient, "directory", "lookup", id.Kind().String(), err)
	}
	return profile, true, nil
}

// UpsertMember creates or updates a member's greeting name and avatar.
func (d *SQLiteDirectory) UpsertMember(ctx context.Context, memberID, greetingName, avatarURL string) error {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return services.Wrap(services.ErrValidation, "directory", "upsert member", "member id is empty", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := sqlitedb.Exec(ctx, d.db,
		`INSERT INTO members (member_id, greeting_name, avatar_url, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(member_id) DO UPDATE SET
             greeting_name = excluded.greeting_name,
             avatar_url = excluded.avatar_url,
             updated_at = excluded.updated_at`,
		memberID, strings.TrimSpace(greetingName), strings.TrimSpace(avatarURL), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// LinkCard maps a card serial to an existing member, replacing any previous owner.
func (d *SQLiteDirectory) LinkCard(ctx context.Context, serial identifier.ID, memberID string) error {
	if serial.Kind() != identifier.KindCardSerial {
		return fmt.Errorf("%w: %q is not a card serial", identifier.ErrInvalid, serial)
	}
	return d.link(ctx, "card_serials", "serial", string(serial), memberID)
}

// LinkNumber maps a member number to an existing member, replacing any previous owner.
func (d *SQLiteDirectory) LinkNumber(ctx context.Context, number identifier.ID, memberID string) error {
	if number.Kind() != identifier.KindMemberNumber {
		return fmt.Errorf("%w: %q is not a member number", identifier.ErrInvalid, number)
	}
	return d.link(ctx, "member_numbers", "number", string(number), memberID)
}

func (d *SQLiteDirectory) link(ctx context.Context, table, column, key, memberID string) error {
	memberID = strings.TrimSpace(memberID)
	if _, found, err := d.Member(ctx, memberID); err != nil {
		return err
	} else if !found {
		return services.Wrap(services.ErrNotFound, "directory", "link", fmt.Sprintf("member %q", memberID), nil)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, member_id) VALUES (?, ?)
         ON CONFLICT(%s) DO UPDATE SET member_id = excluded.member_id`,
		table, column, column,
	)
	if _, err := sqlitedb.Exec(ctx, d.db, query, key, memberID); err != nil {
		return fmt.Errorf("link %s: %w", column, err)
	}
	return nil
}

// Member returns one member with its linked identifiers.
func (d *SQLiteDirectory) Member(ctx context.Context, memberID string) (Member, bool, error) {
	var (
		member  Member
		updated string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT member_id, greeting_name, avatar_url, updated_at FROM members WHERE member_id = ?`,
		memberID,
	).Scan(&member.MemberID, &member.GreetingName, &member.AvatarURL, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, false, nil
	}
	if err != nil {
		return Member{}, false, fmt.Errorf("get member: %w", err)
	}
	member.UpdatedAt = parseTime(updated)

	links, err := d.links(ctx)
	if err != nil {
		return Member{}, false, err
	}
	member.Cards = links.cards[member.MemberID]
	member.Numbers = links.numbers[member.MemberID]
	return member, true, nil
}

// ListMembers returns every member ordered by member id.
func (d *SQLiteDirectory) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT member_id, greeting_name, avatar_url, updated_at FROM members ORDER BY member_id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	var members []Member
	for rows.Next() {
		var (
			member  Member
			updated string
		)
		if err := rows.Scan(&member.MemberID, &member.GreetingName, &member.AvatarURL, &updated); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.UpdatedAt = parseTime(updated)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	_ = rows.Close()

	links, err := d.links(ctx)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i].Cards = links.cards[members[i].MemberID]
		members[i].Numbers = links.numbers[members[i].MemberID]
	}
	return members, nil
}

type linkSet struct {
	cards   map[string][]string
	numbers map[string][]string
}

func (d *SQLiteDirectory) links(ctx context.Context) (linkSet, error) {
	set := linkSet{cards: map[string][]string{}, numbers: map[string][]string{}}
	queries := []struct {
		sql string
		dst map[string][]string
	}{
		{`SELECT member_id, serial FROM card_serials ORDER BY serial`, set.cards},
		{`SELECT member_id, number FROM member_numbers ORDER BY number`, set.numbers},
	}
	for _, q := range queries {
		rows, err := d.db.QueryContext(ctx, q.sql)
		if err != nil {
			return linkSet{}, fmt.Errorf("list links: %w", err)
		}
		for rows.Next() {
			var memberID, key string
			if err := rows.Scan(&memberID, &key); err != nil {
				_ = rows.Close()
				return linkSet{}, fmt.Errorf("scan link: %w", err)
			}
			q.dst[memberID] = append(q.dst[memberID], key)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return linkSet{}, fmt.Errorf("iterate links: %w", err)
		}
	}
	return set, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
