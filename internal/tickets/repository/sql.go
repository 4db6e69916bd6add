package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ticketchain/internal/tickets/domain"
	"ticketchain/platform/apperr"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMySQL opens the ticketing database. The connection is read-only by use;
// nothing here ever writes.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open ticketing database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// SQLSource reads one category from the ticketing schema
// (sw_tickets, sw_ticketlinkchains, sw_ticketposts).
type SQLSource struct {
	db             *gorm.DB
	category       domain.Category
	departments    []string
	postsPerTicket int
}

// NewSQLSource creates a source for category. postsPerTicket caps the posts loaded per ticket.
func NewSQLSource(db *gorm.DB, category domain.Category, postsPerTicket int) *SQLSource {
	depts := domain.DispatchDepartments
	if category == domain.CategoryTurnup {
		depts = domain.TurnupDepartments
	}
	if postsPerTicket <= 0 {
		postsPerTicket = 5
	}
	return &SQLSource{db: db, category: category, departments: depts, postsPerTicket: postsPerTicket}
}

// Category returns the category served.
func (s *SQLSource) Category() domain.Category { return s.category }

func (s *SQLSource) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("sw_tickets.departmenttitle IN ?", s.departments).
		Where("(sw_tickets.tickettypetitle IS NULL OR sw_tickets.tickettypetitle <> ?)", domain.ExcludedTicketType)
}

// GetTicketByID loads the ticket, its chain hash and its first posts.
func (s *SQLSource) GetTicketByID(ctx context.Context, id string) (domain.Ticket, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.Ticket{}, apperr.NotFound(fmt.Sprintf("ticket %s not found", id))
	}

	var row ticketRow
	if err := s.scoped(ctx).Where("sw_tickets.ticketid = ?", n).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ticket{}, apperr.NotFound(fmt.Sprintf("%s ticket %s not found", s.category, id))
		}
		return domain.Ticket{}, fmt.Errorf("query %s ticket %s: %w", s.category, id, err)
	}

	var link linkChainRow
	chainID := ""
	err = s.db.WithContext(ctx).Where("ticketid = ?", n).Order("dateline").Order("ticketlinkchainid").Take(&link).Error
	switch {
	case err == nil:
		chainID = link.ChainHash
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.Ticket{}, fmt.Errorf("query chain for ticket %s: %w", id, err)
	}

	posts, err := s.loadPosts(ctx, []int64{n})
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.toDomain(row, chainID, posts[n]), nil
}

// GetTicketsByChain returns every linked ticket in this category. A ticket
// linked twice appears twice; the resolver dedupes.
func (s *SQLSource) GetTicketsByChain(ctx context.Context, chainID string) ([]domain.Ticket, error) {
	var rows []chainTicketRow
	err := s.scoped(ctx).
		Model(&ticketRow{}).
		Select("sw_tickets.*, tlc.chainhash").
		Joins("JOIN sw_ticketlinkchains tlc ON tlc.ticketid = sw_tickets.ticketid").
		Where("tlc.chainhash = ?", chainID).
		Order("tlc.dateline").
		Order("sw_tickets.ticketid").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s tickets for chain %s: %w", s.category, chainID, err)
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TicketID)
	}
	posts, err := s.loadPosts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Ticket, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toDomain(r.ticketRow, r.ChainHash, posts[r.TicketID]))
	}
	return out, nil
}

// CountPeripheral counts linked tickets from project and other departments.
func (s *SQLSource) CountPeripheral(ctx context.Context, chainID string) (domain.PeripheralCounts, error) {
	var rows []ticketRow
	err := s.db.WithContext(ctx).
		Model(&ticketRow{}).
		Distinct("sw_tickets.ticketid", "sw_tickets.departmenttitle", "sw_tickets.tickettypetitle").
		Joins("JOIN sw_ticketlinkchains tlc ON tlc.ticketid = sw_tickets.ticketid").
		Where("tlc.chainhash = ?", chainID).
		Scan(&rows).Error
	if err != nil {
		return domain.PeripheralCounts{}, fmt.Errorf("count peripheral tickets for chain %s: %w", chainID, err)
	}

	var counts domain.PeripheralCounts
	for _, r := range rows {
		switch domain.ClassifyDepartment(r.DepartmentTitle, r.TicketTypeTitle) {
		case domain.DepartmentProject:
			counts.Project++
		case domain.DepartmentOther:
			counts.Other++
		}
	}
	return counts, nil
}

func (s *SQLSource) loadPosts(ctx context.Context, ids []int64) (map[int64][]postRow, error) {
	out := make(map[int64][]postRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []postRow
	err := s.db.WithContext(ctx).
		Where("ticketid IN ?", ids).
		Order("ticketid").Order("dateline").Order("ticketpostid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	for _, r := range rows {
		if len(out[r.TicketID]) < s.postsPerTicket {
			out[r.TicketID] = append(out[r.TicketID], r)
		}
	}
	return out, nil
}

func (s *SQLSource) toDomain(r ticketRow, chainID string, posts []postRow) domain.Ticket {
	t := domain.Ticket{
		ID:         strconv.FormatInt(r.TicketID, 10),
		Category:   s.category,
		ChainID:    chainID,
		Status:     r.TicketStatusTitle,
		Subject:    r.Subject,
		Type:       r.TicketTypeTitle,
		Department: r.DepartmentTitle,
		CreatedAt:  unixTime(r.Dateline),
		UpdatedAt:  unixTime(r.LastActivity),
		ClosedAt:   unixTime(r.ResolutionDateline),
		DueAt:      unixTime(r.DueDate),
	}
	if s.category == domain.CategoryTurnup {
		t.Technician = r.FullName
	} else {
		t.Customer = r.FullName
	}
	if r.LocationID != nil && *r.LocationID != 0 {
		t.SiteID = strconv.FormatInt(*r.LocationID, 10)
	}
	for _, p := range posts {
		t.Notes = append(t.Notes, domain.Note{
			Author:   p.FullName,
			PostedAt: unixTime(p.Dateline),
			Body:     p.Contents,
			Private:  p.IsPrivate,
		})
	}
	if len(t.Notes) > 0 {
		t.Description = t.Notes[0].Body
	}
	if len(t.Notes) > 1 {
		t.ResolutionNotes = t.Notes[len(t.Notes)-1].Body
	}
	return t
}

func unixTime(v *int64) *time.Time {
	if v == nil || *v <= 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

var (
	_ Source            = (*SQLSource)(nil)
	_ PeripheralCounter = (*SQLSource)(nil)
)
