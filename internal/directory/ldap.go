package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

const memberPageSize = 500

// Attributes maps LDAP attribute names onto member fields.
type Attributes struct {
	ExternalID  string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	DisplayName string
}

func (a Attributes) list() []string {
	return []string{a.ExternalID, a.Username, a.Email, a.FirstName, a.LastName, a.DisplayName}
}

// Options configures the LDAP directory.
type Options struct {
	URI          string
	BindDN       string
	BindPassword string
	// GroupFilter locates one group; {group} is replaced by the escaped
	// selectors joined with GroupSeparator.
	GroupFilter    string
	GroupSeparator string
	// MemberFilter lists a group's members; {dn} is replaced by the escaped
	// group DN.
	MemberFilter string
	// UserFilter finds one person; {username} is replaced by the escaped
	// username.
	UserFilter string
	Attributes Attributes
}

// Searcher is the slice of an LDAP connection the resolver uses.
type Searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc opens an authenticated connection.
type DialFunc func(ctx context.Context, opts Options) (Searcher, error)

// LDAP implements Directory over an LDAP server. A connection is opened per
// call and closed when the call returns.
type LDAP struct {
	opts   Options
	dial   DialFunc
	logger *zap.Logger
}

// Ensure LDAP implements Directory.
var _ Directory = (*LDAP)(nil)

// NewLDAP creates an LDAP directory.
func NewLDAP(opts Options, logger *zap.Logger) *LDAP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GroupSeparator == "" {
		opts.GroupSeparator = "_"
	}
	return &LDAP{opts: opts, dial: dialLDAP, logger: logger}
}

func dialLDAP(ctx context.Context, opts Options) (Searcher, error) {
	conn, err := ldap.DialURL(opts.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", domain.ErrDirectoryUnavailable, opts.URI, err)
	}
	if opts.BindDN != "" {
		if err := conn.Bind(opts.BindDN, opts.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: binding as %s: %v", domain.ErrDirectoryUnavailable, opts.BindDN, err)
		}
	}
	return conn, nil
}

// Resolve returns the members of every group in queries.
func (d *LDAP) Resolve(ctx context.Context, base string, queries []domain.GroupQuery) ([]domain.Member, error) {
	conn, err := d.dial(ctx, d.opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var members []domain.Member
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groupDN, err := d.findGroup(conn, base, q)
		if err != nil {
			return nil, err
		}
		found, err := d.groupMembers(conn, base, groupDN)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("resolved directory group",
			zap.String("group", q.String()),
			zap.String("dn", groupDN),
			zap.Int("members", len(found)))
		members = append(members, found...)
	}
	return dedupe(members), nil
}

// LookupUser finds a person by username.
func (d *LDAP) LookupUser(ctx context.Context, base, username string) (*domain.Member, error) {
	conn, err := d.dial(ctx, d.opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter := strings.ReplaceAll(d.opts.UserFilter, "{username}", ldap.EscapeFilter(username))
	res, err := conn.Search(d.searchRequest(base, filter, d.opts.Attributes.list(), 1))
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: searching user %s: %v", domain.ErrDirectoryUnavailable, username, err)
	}
	if len(res.Entries) == 0 {
		return nil, domain.ErrNotFound
	}
	m := d.toMember(res.Entries[0])
	return &m, nil
}

func (d *LDAP) findGroup(conn Searcher, base string, q domain.GroupQuery) (string, error) {
	escaped := make([]string, len(q.Selectors))
	for i, s := range q.Selectors {
		escaped[i] = ldap.EscapeFilter(s)
	}
	filter := strings.ReplaceAll(d.opts.GroupFilter, "{group}", strings.Join(escaped, d.opts.GroupSeparator))

	res, err := conn.Search(d.searchRequest(base, filter, []string{"1.1"}, 0))
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return "", fmt.Errorf("%w: %s (no such base %s)", domain.ErrGroupNotFound, q, base)
		}
		return "", fmt.Errorf("%w: searching group %s: %v", domain.ErrDirectoryUnavailable, q, err)
	}
	if len(res.Entries) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrGroupNotFound, q)
	}
	if len(res.Entries) > 1 {
		d.logger.Warn("group filter matched several entries, using the first",
			zap.String("group", q.String()), zap.Int("matches", len(res.Entries)))
	}
	return res.Entries[0].DN, nil
}

func (d *LDAP) groupMembers(conn Searcher, base, groupDN string) ([]domain.Member, error) {
	filter := strings.ReplaceAll(d.opts.MemberFilter, "{dn}", ldap.EscapeFilter(groupDN))
	res, err := conn.SearchWithPaging(d.searchRequest(base, filter, d.opts.Attributes.list(), 0), memberPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: listing members of %s: %v", domain.ErrDirectoryUnavailable, groupDN, err)
	}

	members := make([]domain.Member, 0, len(res.Entries))
	for _, e := range res.Entries {
		m := d.toMember(e)
		if m.ExternalID == "" || m.Username() == "" {
			d.logger.Warn("skipping directory entry without id or username", zap.String("dn", e.DN))
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func (d *LDAP) searchRequest(base, filter string, attrs []string, sizeLimit int) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		sizeLimit,
		0,
		false,
		filter,
		attrs,
		nil,
	)
}

func (d *LDAP) toMember(e *ldap.Entry) domain.Member {
	a := d.opts.Attributes
	attrs := map[string]string{
		domain.AttrUsername:    e.GetAttributeValue(a.Username),
		domain.AttrEmail:       e.GetAttributeValue(a.Email),
		domain.AttrFirstName:   e.GetAttributeValue(a.FirstName),
		domain.AttrLastName:    e.GetAttributeValue(a.LastName),
		domain.AttrDisplayName: e.GetAttributeValue(a.DisplayName),
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return domain.Member{ExternalID: e.GetAttributeValue(a.ExternalID), Attributes: attrs}
}

// IsUnavailable reports whether err is a directory transport or auth failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrDirectoryUnavailable)
}
