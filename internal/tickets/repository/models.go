package repository

// ticketRow maps sw_tickets. Timestamps are unix seconds; zero means unset.
type ticketRow struct {
	TicketID           int64  `gorm:"column:ticketid;primaryKey"`
	Subject            string `gorm:"column:subject"`
	TicketStatusTitle  string `gorm:"column:ticketstatustitle"`
	Dateline           *int64 `gorm:"column:dateline"`
	LastActivity       *int64 `gorm:"column:lastactivity"`
	ResolutionDateline *int64 `gorm:"column:resolutiondateline"`
	DueDate            *int64 `gorm:"column:duedate"`
	TicketTypeTitle    string `gorm:"column:tickettypetitle"`
	DepartmentTitle    string `gorm:"column:departmenttitle"`
	FullName           string `gorm:"column:fullname"`
	LocationID         *int64 `gorm:"column:locationid"`
}

func (ticketRow) TableName() string { return "sw_tickets" }

// linkChainRow maps sw_ticketlinkchains.
type linkChainRow struct {
	TicketLinkChainID int64  `gorm:"column:ticketlinkchainid;primaryKey"`
	TicketID          int64  `gorm:"column:ticketid;index"`
	ChainHash         string `gorm:"column:chainhash;index"`
	Dateline          *int64 `gorm:"column:dateline"`
	TicketLinkTypeID  int    `gorm:"column:ticketlinktypeid"`
}

func (linkChainRow) TableName() string { return "sw_ticketlinkchains" }

// postRow maps sw_ticketposts.
type postRow struct {
	TicketPostID int64  `gorm:"column:ticketpostid;primaryKey"`
	TicketID     int64  `gorm:"column:ticketid;index"`
	Contents     string `gorm:"column:contents"`
	FullName     string `gorm:"column:fullname"`
	Dateline     *int64 `gorm:"column:dateline"`
	IsPrivate    bool   `gorm:"column:isprivate"`
}

func (postRow) TableName() string { return "sw_ticketposts" }

// chainTicketRow is a ticket joined with its chain link.
type chainTicketRow struct {
	ticketRow
	ChainHash string `gorm:"column:chainhash"`
}
